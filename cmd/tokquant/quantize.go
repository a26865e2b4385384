package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tokquant/internal/logger"
	"github.com/samcharles93/tokquant/internal/safetensors"
	"github.com/samcharles93/tokquant/internal/version"
	"github.com/samcharles93/tokquant/pkg/quant"
)

func quantizeCmd() *cli.Command {
	var (
		inputPath  string
		outputPath string
		target     string
		tensors    []string
		copyOthers bool
	)

	return &cli.Command{
		Name:  "quantize",
		Usage: "Quantize BF16/F16 tensors of a safetensors file, one scale per row",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "input .safetensors file",
				Required:    true,
				Destination: &inputPath,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "output .safetensors file",
				Required:    true,
				Destination: &outputPath,
			},
			&cli.StringFlag{
				Name:        "target",
				Aliases:     []string{"t"},
				Usage:       "quantization target (int8, fp8)",
				Value:       "int8",
				Destination: &target,
			},
			&cli.StringSliceFlag{
				Name:        "tensor",
				Usage:       "tensor to quantize (repeatable; default: every BF16/F16 tensor)",
				Destination: &tensors,
			},
			&cli.BoolFlag{
				Name:        "copy-others",
				Usage:       "copy tensors that are not quantized into the output",
				Destination: &copyOthers,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyQuantizeConfig(cmd, fileConfig, &target)

			targetDT, err := quant.ParseDType(target)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if !targetDT.IsNarrow() {
				return cli.Exit(fmt.Sprintf("error: %v: %s", quant.ErrUnsupportedTarget, targetDT), 1)
			}

			q := newQuantizer()
			defer q.Close()

			stats, err := quantizeFile(ctx, q, inputPath, outputPath, targetDT, tensors, copyOthers)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log.Info("wrote output",
				"path", outputPath,
				"quantized", stats.quantized,
				"copied", stats.copied,
				"skipped", stats.skipped,
			)
			return nil
		},
	}
}

type quantizeStats struct {
	quantized int
	copied    int
	skipped   int
}

// quantizeFile writes <name> (codes) and <name>.scale ([rows, 1] F32) for
// each selected tensor. Named tensors that are not BF16/F16 are an error;
// when selecting automatically they are copied or skipped.
func quantizeFile(ctx context.Context, q *quant.Quantizer, inputPath, outputPath string, target quant.DType, names []string, copyOthers bool) (quantizeStats, error) {
	log := logger.FromContext(ctx)
	var stats quantizeStats

	in, err := safetensors.Open(inputPath)
	if err != nil {
		return stats, fmt.Errorf("open %s: %w", inputPath, err)
	}
	defer func() { _ = in.Close() }()

	for _, name := range names {
		if _, ok := in.Tensor(name); !ok {
			return stats, fmt.Errorf("tensor not found: %s", name)
		}
	}

	w := safetensors.NewWriter()
	w.SetMetadata("quantization", "per_token_dynamic")
	w.SetMetadata("quantization_dtype", target.String())
	w.SetMetadata("producer", "tokquant "+version.String())

	for _, name := range in.Names() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		info, _ := in.Tensor(name)
		selected := slices.Contains(names, name)
		if len(names) == 0 {
			dt, err := quant.ParseDType(info.DType)
			selected = err == nil && dt.IsWide()
		}

		if !selected {
			if !copyOthers {
				log.Debug("skipping tensor", "name", name, "dtype", info.DType)
				stats.skipped++
				continue
			}
			raw, _, err := in.ReadTensor(name)
			if err != nil {
				return stats, err
			}
			if err := w.Add(name, info.DType, info.Shape, raw); err != nil {
				return stats, err
			}
			stats.copied++
			continue
		}

		if dt, err := quant.ParseDType(info.DType); err != nil || !dt.IsWide() {
			return stats, fmt.Errorf("tensor %s: %w", name,
				&quant.UnsupportedInputTypeError{Op: "Quantize", DType: dt, Format: info.DType})
		}
		m, err := in.ReadMatrix(name)
		if err != nil {
			return stats, err
		}
		out, scales, err := q.Quantize(m, target)
		if err != nil {
			return stats, fmt.Errorf("tensor %s: %w", name, err)
		}
		if err := w.AddBufferShape(name, out, info.Shape); err != nil {
			return stats, err
		}
		if err := w.AddBuffer(name+".scale", scales); err != nil {
			return stats, err
		}
		log.Debug("quantized tensor", "name", name, "dtype", info.DType, "shape", info.Shape, "target", target.String())
		stats.quantized++
	}

	if err := w.WriteFile(outputPath); err != nil {
		return stats, fmt.Errorf("write %s: %w", outputPath, err)
	}
	return stats, nil
}
