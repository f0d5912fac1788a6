package ocr

import (
	"context"
	"fmt"
)

// RecognizeInputs runs the engine over inputs. If the engine supports batch
// operation, it is used; otherwise calls are executed sequentially.
func RecognizeInputs(ctx context.Context, engine Engine, inputs []Input) ([]Result, error) {
	if b, ok := engine.(BatchEngine); ok {
		return b.RecognizeBatch(ctx, inputs)
	}
	results := make([]Result, 0, len(inputs))
	for _, in := range inputs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		res, err := engine.Recognize(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("recognize %s: %w", in.ID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// RecognizeUpload builds an input from raw upload bytes and recognizes it.
func RecognizeUpload(ctx context.Context, engine Engine, data []byte, opts ...InputOption) (Result, error) {
	in, err := InputFromUpload(data, opts...)
	if err != nil {
		return Result{}, err
	}
	return engine.Recognize(ctx, in)
}
