package scout_test

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wepublish/dorfkoenig/infrastructure/logger"
	"github.com/wepublish/dorfkoenig/internal/domain"
	"github.com/wepublish/dorfkoenig/internal/extractor"
	"github.com/wepublish/dorfkoenig/internal/llm"
	"github.com/wepublish/dorfkoenig/internal/scout"
	"github.com/wepublish/dorfkoenig/internal/telemetry"
)

type scriptedChat struct{ reply string }

func (c scriptedChat) Complete(context.Context, llm.ChatRequest) (string, error) {
	return c.reply, nil
}

// statementEmbedder returns a fixed vector per statement.
type statementEmbedder map[string][]float32

func (e statementEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e[t]
	}
	return out, nil
}

type memUnits struct {
	mu    sync.Mutex
	units []*domain.InformationUnit
}

func (m *memUnits) Insert(_ context.Context, u *domain.InformationUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.units = append(m.units, u)
	return nil
}

func TestExecute_ExtractsDeduplicatedUnits(t *testing.T) {
	t.Parallel()

	const (
		budget  = "Der Gemeinderat Zürich hat das Budget 2026 genehmigt."
		repeat  = "Das Budget 2026 wurde vom Zürcher Gemeinderat genehmigt."
		library = "Die Stadtbibliothek öffnet am 1. April eine neue Filiale."
	)
	chat := scriptedChat{reply: "```json\n" + `{"units":[` +
		`{"statement":"` + budget + `","unitType":"fact","entities":["Gemeinderat"]},` +
		`{"statement":"` + repeat + `","unitType":"fact","entities":["Gemeinderat"]},` +
		`{"statement":"` + library + `","unitType":"event","entities":["Stadtbibliothek"],"eventDate":"2026-04-01"}` +
		`]}` + "\n```"}
	embedder := statementEmbedder{
		budget:  {1, 0},
		repeat:  {0.96, 0.28},
		library: {0, 1},
	}
	store := &memUnits{}

	f := newFixture(zurichScout())
	executor := scout.NewExecutor(scout.Deps{
		Scouts:     f.scouts,
		Executions: f.executions,
		Scraper:    f.scraper,
		Analyzer:   f.analyzer,
		Embedder:   &fakeEmbedder{vector: []float32{1, 0}},
		Extractor:  extractor.New(chat, embedder, store, logger.NewNop()),
		Mailer:     f.mailer,
		Telemetry:  telemetry.NewProvider(prometheus.NewRegistry()),
		Logger:     logger.NewNop(),
	})

	res, err := executor.Execute(context.Background(), "scout-1", "user-1", scout.Options{ExtractUnits: true})
	require.NoError(t, err)

	assert.Equal(t, 2, res.UnitsExtracted)
	assert.Equal(t, 2, f.executions.units)
	require.Len(t, store.units, 2)
	assert.Equal(t, budget, store.units[0].Statement)
	assert.Equal(t, library, store.units[1].Statement)
	for _, u := range store.units {
		require.NotNil(t, u.ExecutionID)
		assert.Equal(t, "exec-1", *u.ExecutionID)
		require.NotNil(t, u.ScoutID)
		assert.Equal(t, "scout-1", *u.ScoutID)
		assert.Equal(t, "zuerich.ch", u.SourceDomain)
	}
}
