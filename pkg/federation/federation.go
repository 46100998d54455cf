// Package federation implements the privacy-preserving peer coordination
// protocol: a node derives anonymized fragments of its local knowledge,
// discovers peers on the local network, exchanges similarity-scored
// queries and synthesized insights with them, and maintains a bounded
// trust model over time. Raw content never leaves the node.
package federation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"weave/pkg/config"
	"weave/pkg/fragment"
	"weave/pkg/identity"
	"weave/pkg/match"
	"weave/pkg/protocol"
	"weave/pkg/registry"
	"weave/pkg/services"
	"weave/pkg/transport"
	"weave/pkg/types"
)

// State is the lifecycle position of the protocol.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	}
	return "unknown"
}

// Discovery methods. Only local broadcast is implemented; the other values
// are reserved and select legal no-ops.
const (
	DiscoverLocalBroadcast = "local_broadcast"
	DiscoverDHT            = "dht"
	DiscoverBootstrap      = "bootstrap"
)

// Contract violations are loud: they indicate a usage bug, not an
// environmental condition.
var (
	ErrNotRunning     = errors.New("federation: protocol is not running")
	ErrAlreadyRunning = errors.New("federation: protocol already started")
)

// synthesisInstruction is passed verbatim to the synthesis service. It is
// an operational directive, not a local guarantee.
const synthesisInstruction = "Provide a synthetic insight that could come from documents containing these concepts, but don't invent specific facts. Focus on patterns and connections."

// responseConfidence is the fixed confidence reported on served insights.
const responseConfidence = 0.7

// Trust deltas applied after insight exchanges.
const (
	trustRewardSuccess = 0.1
	trustPenaltyFail   = -0.1
)

const maxSynthesisConcepts = 10

// Protocol is one node's view of the federation. It owns the fragment
// store and peer registry exclusively; all mutation happens under their
// internal locks so concurrent discovery and exchange tasks stay safe.
type Protocol struct {
	cfg       *config.Config
	id        *identity.Identity
	store     *fragment.Store
	reg       *registry.Registry
	builder   *fragment.Builder
	matcher   *match.Matcher
	transport transport.Transport
	synth     services.Synthesizer
	logger    *zap.Logger
	metrics   *Metrics

	mu         sync.Mutex
	state      State
	loopCancel context.CancelFunc
}

// New wires a protocol instance. synth may be nil, in which case every
// insight request is declined.
func New(
	cfg *config.Config,
	id *identity.Identity,
	store *fragment.Store,
	reg *registry.Registry,
	builder *fragment.Builder,
	matcher *match.Matcher,
	tr transport.Transport,
	synth services.Synthesizer,
	logger *zap.Logger,
) *Protocol {
	p := &Protocol{
		cfg:       cfg,
		id:        id,
		store:     store,
		reg:       reg,
		builder:   builder,
		matcher:   matcher,
		transport: tr,
		synth:     synth,
		logger:    logger,
		metrics:   NewMetrics(),
	}
	return p
}

// NodeID returns this node's stable identifier.
func (p *Protocol) NodeID() types.NodeID {
	return p.id.NodeID()
}

// State returns the current lifecycle state.
func (p *Protocol) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Metrics exposes the node's collectors.
func (p *Protocol) Metrics() *Metrics {
	return p.metrics
}

// Registry exposes the peer registry for read-side callers.
func (p *Protocol) Registry() *registry.Registry {
	return p.reg
}

// Store exposes the fragment store for read-side callers.
func (p *Protocol) Store() *fragment.Store {
	return p.store
}

// Start builds fragments from the given documents, attempts one discovery
// round and begins answering peers. A fragment build failure aborts the
// start; a discovery failure does not — a node with zero peers is still
// started.
func (p *Protocol) Start(ctx context.Context, docs map[string]types.Document) error {
	p.mu.Lock()
	if p.state != StateStopped {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	p.state = StateStarting
	p.mu.Unlock()

	fragments := p.builder.Build(ctx, docs)
	p.logger.Info("prepared fragments for sharing", zap.Int("count", len(fragments)))
	p.metrics.FragmentsStored.Set(float64(p.store.Count()))

	p.transport.SetHandler(p.handleMessage)

	loopCtx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.loopCancel = cancel
	p.state = StateRunning
	p.mu.Unlock()

	go p.evictionLoop(loopCtx)

	peers, err := p.DiscoverPeers(ctx, p.cfg.Discovery.Method)
	if err != nil {
		p.logger.Warn("initial discovery failed", zap.Error(err))
	} else {
		p.logger.Info("connected to peers", zap.Int("count", len(peers)))
	}

	p.logger.Info("federation started", zap.String("node_id", string(p.id.NodeID())))
	return nil
}

// Stop leaves the federation immediately. In-flight insight requests are
// not cancelled; they resolve or time out on their own.
func (p *Protocol) Stop() {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return
	}
	p.state = StateStopping
	cancel := p.loopCancel
	p.loopCancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	p.mu.Lock()
	p.state = StateStopped
	p.mu.Unlock()
	p.logger.Info("federation stopped")
}

func (p *Protocol) running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StateRunning
}

// DiscoverPeers runs one discovery round. Transport failures are logged
// and surface as an empty result; the listen window expiring is normal
// termination. Newly seen peers enter the registry at trust 0.5.
func (p *Protocol) DiscoverPeers(ctx context.Context, method string) ([]types.FederationNode, error) {
	switch method {
	case DiscoverLocalBroadcast, "":
		return p.discoverLocalBroadcast(ctx), nil
	case DiscoverDHT, DiscoverBootstrap:
		// Reserved discovery modes: selectable, not yet implemented.
		p.logger.Info("discovery method not implemented", zap.String("method", method))
		return nil, nil
	default:
		return nil, fmt.Errorf("federation: unknown discovery method %q", method)
	}
}

func (p *Protocol) discoverLocalBroadcast(ctx context.Context) []types.FederationNode {
	p.metrics.DiscoveryRounds.Inc()

	msg := protocol.NewDiscovery(p.id.NodeID(), p.cfg.Node.Port, p.store.SampleConcepts(protocol.MaxDiscoveryConcepts))
	responses, err := p.transport.Broadcast(ctx, msg.Encode(), p.cfg.Discovery.ListenWindow)
	if err != nil {
		p.logger.Error("error during peer discovery", zap.Error(err))
	}

	var discovered []types.FederationNode
	for _, resp := range responses {
		env, ok := protocol.Decode(resp.Payload)
		if !ok || env.Type != protocol.TypeDiscoveryResponse || env.NodeID == p.id.NodeID() {
			continue
		}

		peer := types.FederationNode{
			NodeID:         env.NodeID,
			Address:        resp.From,
			Port:           env.Port,
			TrustScore:     registry.TrustDiscovered,
			LastSeen:       time.Now().UTC(),
			Capabilities:   env.Capabilities,
			SharedConcepts: env.Concepts,
		}
		p.reg.RegisterOrUpdate(peer)
		discovered = append(discovered, peer)
	}

	p.metrics.PeersDiscovered.Add(float64(len(discovered)))
	p.metrics.PeersKnown.Set(float64(p.reg.Count()))
	p.logger.Info("discovered peers", zap.Int("count", len(discovered)))
	return discovered
}

// RequestInsight asks a peer for a synthesized answer to the query.
// Calling it before Start is a contract violation and fails fast with
// ErrNotRunning; every environmental failure (unknown peer, timeout,
// transport error, declined request) degrades to an empty result.
func (p *Protocol) RequestInsight(ctx context.Context, peerID types.NodeID, query string) (string, error) {
	if !p.running() {
		return "", ErrNotRunning
	}

	peer, ok := p.reg.Get(peerID)
	if !ok {
		p.logger.Error("peer not found", zap.String("peer_id", string(peerID)))
		return "", nil
	}

	p.metrics.InsightRequests.Inc()
	req := protocol.NewInsightRequest(p.id.NodeID(), query, requestID(query))

	resp, err := p.transport.Send(ctx, peerAddr(peer), req.Encode(), p.cfg.Exchange.RequestTimeout)
	if err != nil {
		p.logger.Error("error requesting insights",
			zap.String("peer_id", string(peerID)), zap.Error(err))
		p.adjustTrust(peerID, trustPenaltyFail)
		p.metrics.InsightFailures.Inc()
		return "", nil
	}
	if resp == nil {
		// The peer had nothing to say. Still a successful contact.
		p.reg.Touch(peerID)
		return "", nil
	}

	env, ok := protocol.Decode(resp)
	if !ok || env.Type != protocol.TypeInsightResponse {
		p.logger.Warn("dropping malformed insight response", zap.String("peer_id", string(peerID)))
		p.adjustTrust(peerID, trustPenaltyFail)
		p.metrics.InsightFailures.Inc()
		return "", nil
	}

	p.reg.Touch(peerID)
	if env.Insights == "" {
		return "", nil
	}

	p.adjustTrust(peerID, trustRewardSuccess)
	return env.Insights, nil
}

// Match ranks the store's candidate fragments against the query concepts.
// Calling it before Start is a contract violation.
func (p *Protocol) Match(ctx context.Context, queryConcepts []string, maxResults int) ([]match.Match, error) {
	if !p.running() {
		return nil, ErrNotRunning
	}
	return p.matcher.Match(ctx, queryConcepts, p.store.List(), maxResults), nil
}

// Stats reports the node's federation posture for external callers.
func (p *Protocol) Stats() types.FederationStats {
	return types.FederationStats{
		NodeID:              p.id.NodeID(),
		FragmentCount:       p.store.Count(),
		PeerCount:           p.reg.Count(),
		TotalSharedConcepts: len(p.store.ConceptUnion()),
		PrivacyLevel:        "concepts_only",
		Running:             p.running(),
	}
}

// handleMessage is the announcer/responder side: it answers discovery
// requests and insight requests from peers. Malformed messages are
// dropped silently.
func (p *Protocol) handleMessage(from string, payload []byte) []byte {
	if !p.running() {
		return nil
	}

	env, ok := protocol.Decode(payload)
	if !ok {
		return nil
	}

	switch env.Type {
	case protocol.TypeDiscovery:
		if env.NodeID == p.id.NodeID() {
			return nil
		}
		resp := protocol.NewDiscoveryResponse(
			p.id.NodeID(),
			p.cfg.Node.Port,
			p.cfg.Node.Capabilities,
			p.store.SampleConcepts(protocol.MaxDiscoveryConcepts),
		)
		return resp.Encode()

	case protocol.TypeInsightRequest:
		return p.answerInsightRequest(env)
	}

	return nil
}

// answerInsightRequest applies the responder policy: keep own concepts
// containing any query word (case-insensitive substring), decline when
// none match, otherwise synthesize from at most ten of them.
func (p *Protocol) answerInsightRequest(env protocol.Envelope) []byte {
	relevant := relevantConcepts(p.store.ConceptUnion(), env.Query)
	if len(relevant) == 0 {
		p.metrics.InsightsDeclined.Inc()
		return nil
	}
	if p.synth == nil {
		p.logger.Warn("synthesis service not available",
			zap.String("request_id", env.RequestID))
		p.metrics.InsightsDeclined.Inc()
		return nil
	}

	if len(relevant) > maxSynthesisConcepts {
		relevant = relevant[:maxSynthesisConcepts]
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Exchange.RequestTimeout)
	defer cancel()

	text, err := p.synth.Synthesize(ctx, relevant, env.Query, synthesisInstruction)
	if err != nil {
		p.logger.Error("error generating insight",
			zap.String("request_id", env.RequestID),
			zap.String("from_node", string(env.FromNode)),
			zap.Error(err))
		return nil
	}

	p.metrics.InsightsServed.Inc()
	resp := protocol.NewInsightResponse(p.id.NodeID(), text, relevant, responseConfidence)
	return resp.Encode()
}

// relevantConcepts returns the concepts containing any query word,
// case-insensitively.
func relevantConcepts(concepts []string, query string) []string {
	words := strings.Fields(strings.ToLower(query))
	var relevant []string
	for _, concept := range concepts {
		lower := strings.ToLower(concept)
		for _, w := range words {
			if strings.Contains(lower, w) {
				relevant = append(relevant, concept)
				break
			}
		}
	}
	return relevant
}

func (p *Protocol) adjustTrust(id types.NodeID, delta float64) {
	p.reg.UpdateTrust(id, delta)
	p.metrics.TrustUpdates.Inc()
}

// evictionLoop sweeps stale peers out of the registry while running.
func (p *Protocol) evictionLoop(ctx context.Context) {
	interval := p.cfg.Registry.SweepInterval
	if interval <= 0 || p.cfg.Registry.EvictAfter <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			evicted := p.reg.EvictStale(p.cfg.Registry.EvictAfter)
			if evicted > 0 {
				p.metrics.PeersEvicted.Add(float64(evicted))
				p.metrics.PeersKnown.Set(float64(p.reg.Count()))
			}
		case <-ctx.Done():
			return
		}
	}
}

// requestID derives a short correlation id from the query and current
// time. Collisions are acceptable; it is for logging, not security.
func requestID(query string) string {
	sum := sha256.Sum256([]byte(query + time.Now().Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])[:8]
}

// peerAddr resolves the dialable address for a peer: the observed host
// plus the advertised federation port. Addresses without a port component
// (in-process bus) pass through unchanged.
func peerAddr(peer types.FederationNode) string {
	host, _, err := net.SplitHostPort(peer.Address)
	if err != nil || peer.Port == 0 {
		return peer.Address
	}
	return net.JoinHostPort(host, strconv.Itoa(peer.Port))
}
