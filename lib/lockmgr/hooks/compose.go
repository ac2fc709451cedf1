package hooks

import (
	"context"

	"github.com/ValentinKolb/hlock/lib/lockmgr"
	"golang.org/x/sync/errgroup"
)

// Action is a hook that can be taken back. On success it returns an Undo
// reverting exactly its own effect (nil if it has none). On failure it must
// already have reverted whatever it did itself.
//
// Journal.Acquire and Journal.Release are actions, Stateless adapts hooks
// without side effects.
type Action func(ctx context.Context, locks []*lockmgr.Lock) (Undo, error)

// Stateless adapts a hook without side effects (validation, notification,
// metrics) to an Action with nothing to undo.
func Stateless(hook lockmgr.Hook) Action {
	return func(ctx context.Context, locks []*lockmgr.Lock) (Undo, error) {
		return nil, hook(ctx, locks)
	}
}

// undoAll runs the given undos in reverse order, skipping nil entries
func undoAll(undos []Undo) {
	for i := len(undos) - 1; i >= 0; i-- {
		if undos[i] != nil {
			undos[i]()
		}
	}
}

// Chain returns a hook running the given actions one after another. At the
// first error the actions that already succeeded are undone in reverse order
// and the error is returned, so a failed batch leaves every store as it found
// it. Nil actions are skipped.
func Chain(actions ...Action) lockmgr.Hook {
	return func(ctx context.Context, locks []*lockmgr.Lock) error {
		undos := make([]Undo, 0, len(actions))
		for _, action := range actions {
			if action == nil {
				continue
			}
			undo, err := action(ctx, locks)
			if err != nil {
				Logger.Warningf("hook chain failed after %d action(s), undoing: %v", len(undos), err)
				undoAll(undos)
				return err
			}
			undos = append(undos, undo)
		}
		return nil
	}
}

// Fanout returns a hook running the given actions concurrently. The first
// error cancels the context passed to the others. Once all of them have
// finished the actions that succeeded are undone and the first error is
// returned. Nil actions are skipped.
func Fanout(actions ...Action) lockmgr.Hook {
	return func(ctx context.Context, locks []*lockmgr.Lock) error {
		undos := make([]Undo, len(actions))
		g, gctx := errgroup.WithContext(ctx)
		for i, action := range actions {
			if action == nil {
				continue
			}
			g.Go(func() error {
				undo, err := action(gctx, locks)
				undos[i] = undo
				return err
			})
		}
		if err := g.Wait(); err != nil {
			Logger.Warningf("hook fanout failed, undoing: %v", err)
			undoAll(undos)
			return err
		}
		return nil
	}
}
