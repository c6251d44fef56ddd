package tasks

import (
	"context"
	"errors"

	"github.com/whole-tale/gwvolman/pkg/dataone"
	"github.com/whole-tale/gwvolman/pkg/publish"
)

// PublishTotal is the progress total of Publish.
const PublishTotal = 100

// Publish publishes a tale to a DataONE member node.
func Publish(ctx context.Context, env *Env, call Call, req publish.Request) (*publish.Result, error) {
	p := env.Publisher(call.Girder, call.Logger)
	res, err := p.Publish(ctx, req, func(ctx context.Context, current float64, message string) {
		call.Progress.Update(ctx, current, PublishTotal, message)
	})
	if err != nil {
		for _, known := range []error{
			publish.ErrNoFiles, publish.ErrTaleNotFound, publish.ErrLicense, dataone.ErrCredentials,
		} {
			if errors.Is(err, known) {
				return nil, NewUserError(known.Error(), err)
			}
		}
		return nil, err
	}
	return &res, nil
}
