package analytics

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/leadform/internal/model"
)

// DefaultPixelIDs are the ad-platform conversion events per form kind.
var DefaultPixelIDs = map[model.FormKind]string{
	model.FormTalent:        "tw-ocr68-ooizv",
	model.FormHumanData:     "tw-ocr68-opq5o",
	model.FormAIInterviewer: "tw-ocr68-opq5p",
	model.FormGeneral:       "tw-ocr68-opq1t",
}

// Pixel fires the conversion event for a form kind.
type Pixel struct {
	IDs     map[model.FormKind]string
	Tracker Tracker
}

// NewPixel returns a pixel using DefaultPixelIDs.
func NewPixel(t Tracker) *Pixel {
	return &Pixel{IDs: DefaultPixelIDs, Tracker: t}
}

// Fire records the conversion for kind. It never fails: unknown kinds and
// delivery errors are logged and dropped.
func (p *Pixel) Fire(ctx context.Context, kind model.FormKind, userID string) {
	id, ok := p.IDs[kind]
	if !ok {
		zap.L().Debug("analytics: no conversion pixel for form kind", zap.String("kind", string(kind)))
		return
	}
	BestEffort(ctx, p.Tracker, Event{
		UserID: userID,
		Type:   EventConversion,
		Properties: map[string]any{
			"pixel_id": id,
			"product":  string(kind),
		},
	})
}
