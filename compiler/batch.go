package compiler

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/deepnoodle-ai/lift/bytecode"
	"github.com/deepnoodle-ai/lift/errz"
	"github.com/deepnoodle-ai/lift/version"
)

var errNilFunction = errors.New("nil function")

// TranslateAll translates fns concurrently. The result has one entry per
// function, in order; failed functions leave a nil entry. A failure never
// stops other functions from translating. The returned error aggregates
// every failure, each a *errz.TranslationError, or is a context error when
// ctx ends before all functions were started. Nil functions and translator
// panics fail only their own entry.
func TranslateAll(ctx context.Context, fns []*bytecode.Function, opts ...Option) ([]*Translation, error) {
	cfg := newConfig(opts)
	results := make([]*Translation, len(fns))
	errs := make([]error, len(fns))

	var g errgroup.Group
	g.SetLimit(cfg.workers)
	for i, fn := range fns {
		i, fn := i, fn
		if err := ctx.Err(); err != nil {
			_ = g.Wait()
			return results, err
		}
		if fn == nil {
			errs[i] = errz.NewTranslationError(fmt.Sprintf("function[%d]", i), -1, "", version.Version{}, errNilFunction)
			cfg.logger.Warn().Err(errs[i]).Int("index", i).Msg("translation failed")
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			defer func() {
				if r := recover(); r != nil {
					errs[i] = errz.NewTranslationError(fn.Name(), -1, "", fn.Version(), fmt.Errorf("translator panic: %v", r))
					cfg.logger.Error().Err(errs[i]).Str("function", fn.Name()).Msg("translation failed")
				}
			}()
			t, err := Translate(fn, opts...)
			if err != nil {
				cfg.logger.Warn().Err(err).Str("function", fn.Name()).Msg("translation failed")
				errs[i] = err
				return nil
			}
			results[i] = t
			return nil
		})
	}
	_ = g.Wait()

	var result *multierror.Error
	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return results, result.ErrorOrNil()
}
