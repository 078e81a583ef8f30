package export

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hdpolover/ybb-data-management-service-sub000/internal/config"
	"github.com/hdpolover/ybb-data-management-service-sub000/internal/models"
)

// fakeClock lets retention tests advance time deterministically.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// makeRows builds n rows whose first cell is "r<rownum>" (1-based).
func makeRows(n int) [][]string {
	rows := make([][]string, n)
	for i := range rows {
		rows[i] = []string{fmt.Sprintf("r%d", i+1), "x"}
	}
	return rows
}

// stubRenderer emits one line per row; deterministic and cheap.
type stubRenderer struct{}

func (stubRenderer) ContentType() string { return "text/plain" }
func (stubRenderer) Ext() string         { return "txt" }

func (stubRenderer) Render(_ context.Context, columns []string, rows [][]string) ([]byte, error) {
	var b strings.Builder
	b.WriteString(strings.Join(columns, ","))
	b.WriteByte('\n')
	for _, row := range rows {
		b.WriteString(strings.Join(row, ","))
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

// failingRenderer fails the chunk whose first row's first cell matches.
type failingRenderer struct {
	stubRenderer
	failFirstCell string
}

func (r failingRenderer) Render(ctx context.Context, columns []string, rows [][]string) ([]byte, error) {
	if len(rows) > 0 && rows[0][0] == r.failFirstCell {
		return nil, fmt.Errorf("simulated render failure at %s", r.failFirstCell)
	}
	return r.stubRenderer.Render(ctx, columns, rows)
}

// stallingRenderer blocks until the context is done.
type stallingRenderer struct{ stubRenderer }

func (stallingRenderer) Render(ctx context.Context, _ []string, _ [][]string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func testExportCfg() config.ExportConfig {
	return config.ExportConfig{
		SingleFileThreshold:  1000,
		MultiFileThreshold:   10000,
		MinChunkSize:         500,
		MaxChunkSize:         20000,
		RetentionTTL:         time.Hour,
		MinExportAge:         10 * time.Minute,
		MaxConcurrentExports: 50,
		CleanupInterval:      time.Minute,
		TombstoneTTL:         10 * time.Minute,
		ProcessTimeout:       time.Minute,
		RenderWorkers:        4,
	}
}

func testTemplates() map[string]config.TemplateConfig {
	return map[string]config.TemplateConfig{
		"participants": {
			Format:    "csv",
			ChunkSize: 5000,
			Columns:   []string{"id", "name"},
		},
	}
}

func testLimits() Limits {
	return Limits{
		SingleFileThreshold: 1000,
		MultiFileThreshold:  10000,
		MinChunkSize:        500,
		MaxChunkSize:        20000,
	}
}

// processingRecord builds a registered processing record for registry tests.
func processingRecord(clock Clock, total int) *models.ExportRecord {
	now := clock.Now()
	return &models.ExportRecord{
		ID:           uuid.New(),
		ExportType:   "participants",
		Template:     "participants",
		Strategy:     models.StrategyMultiFile,
		Status:       models.ExportStatusProcessing,
		TotalRecords: total,
		ChunkSize:    5000,
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Hour),
	}
}

func noplog() *zap.Logger { return zap.NewNop() }
