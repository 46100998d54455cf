package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"weave/pkg/config"
	"weave/pkg/federation"
	"weave/pkg/fragment"
	"weave/pkg/identity"
	"weave/pkg/match"
	"weave/pkg/registry"
	"weave/pkg/transport"
	"weave/pkg/types"
)

func testDocs() map[string]types.Document {
	return map[string]types.Document{
		"Roadmap": {
			Title:    "Roadmap",
			Content:  "Quarterly plan built on customer discovery interviews.",
			Concepts: []string{"roadmap", "discovery"},
		},
	}
}

func newTestServer(t *testing.T) (*Server, *federation.Protocol, map[string]types.Document) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cfg := config.Default()
	cfg.Discovery.ListenWindow = 50 * time.Millisecond
	cfg.Registry.SweepInterval = 0

	id := identity.Ephemeral()
	store := fragment.NewStore()
	reg := registry.New(logger)
	builder := fragment.NewBuilder(id.NodeID(), store, nil, nil, nil, types.PrivacyPublic, logger)
	matcher := match.NewMatcher(id.NodeID(), nil, logger)
	tr := transport.NewBus().Attach("node-a")
	t.Cleanup(func() { tr.Close() })

	proto := federation.New(cfg, id, store, reg, builder, matcher, tr, nil, logger)
	docs := testDocs()
	require.NoError(t, proto.Start(context.Background(), docs))
	t.Cleanup(proto.Stop)

	return New(":0", proto, logger), proto, docs
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	s, proto, _ := newTestServer(t)
	rec := get(t, s, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats types.FederationStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, proto.NodeID(), stats.NodeID)
	assert.True(t, stats.Running)
	assert.Equal(t, 1, stats.FragmentCount)
}

func TestPeersEndpoint(t *testing.T) {
	s, proto, _ := newTestServer(t)
	proto.Registry().RegisterOrUpdate(types.FederationNode{
		NodeID:     "weave-peer",
		Address:    "192.168.1.30:8447",
		TrustScore: registry.TrustDiscovered,
	})

	rec := get(t, s, "/peers")
	require.Equal(t, http.StatusOK, rec.Code)

	var peers []types.FederationNode
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&peers))
	require.Len(t, peers, 1)
	assert.Equal(t, types.NodeID("weave-peer"), peers[0].NodeID)
}

// The fragments surface serves derived metadata only; raw document
// content must never appear in it.
func TestFragmentsEndpoint_NeverLeaksContent(t *testing.T) {
	s, _, docs := newTestServer(t)
	rec := get(t, s, "/fragments")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, doc := range docs {
		assert.NotContains(t, body, doc.Content)
	}

	var fragments []types.KnowledgeFragment
	require.NoError(t, json.Unmarshal([]byte(body), &fragments))
	require.Len(t, fragments, 1)
	assert.Equal(t, []string{"roadmap", "discovery"}, fragments[0].Concepts)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "weave_fragments_stored"))
}
