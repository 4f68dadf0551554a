package serialline

import "github.com/arloliu/go-motor/internal/link"

// LineMetrics contains atomic metrics for a serial line.
type LineMetrics = link.Metrics
