package stages

import (
	"context"

	"github.com/valpere/docpipe/internal/document"
	"github.com/valpere/docpipe/internal/pipeline"
	"github.com/valpere/docpipe/internal/writer"
)

const CopyName = "copy"

// Copy writes each document unchanged to output_dir, which has no default.
type Copy struct {
	out *writer.Dir
}

func NewCopy() *Copy { return &Copy{} }

func (c *Copy) Name() string { return CopyName }

func (c *Copy) DefaultConfig() pipeline.Config {
	return pipeline.Config{"output_dir": nil}
}

func (c *Copy) Initialize(_ context.Context, _ *pipeline.Resources, cfg pipeline.Config) error {
	var opts struct {
		OutputDir string `mapstructure:"output_dir" validate:"required"`
	}
	if err := cfg.Decode(c.Name(), &opts); err != nil {
		return err
	}
	out, err := writer.NewDir(opts.OutputDir)
	if err != nil {
		return pipeline.NewConfigurationError(c.Name(), "output_dir", err)
	}
	c.out = out
	return nil
}

// Start releases the output names claimed by the previous run.
func (c *Copy) Start(context.Context) error {
	c.out.Reset()
	return nil
}

func (c *Copy) Process(_ context.Context, doc *document.Document) error {
	path, err := c.out.Write(doc.ID(), doc.Content())
	if err != nil {
		return err
	}
	document.Set(doc, document.KeyOutputPath, path)
	return nil
}
