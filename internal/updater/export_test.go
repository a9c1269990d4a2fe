package updater

import (
	"context"

	"go.uber.org/zap"

	"financeexporter/internal/source"
)

// Update runs one ticker of src outside a cycle.
func (p *Processor) Update(ctx context.Context, src source.Bound, ticker string) error {
	log := p.logger.With(zap.String("source", src.Name), zap.String("plugin", string(src.Plugin)))
	return p.update(ctx, log, src, ticker)
}
