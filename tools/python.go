package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"csv-agent/config"
	apperrors "csv-agent/errors"

	"go.uber.org/zap"
)

const (
	EOM_TOKEN = "<|EOM|>"
)

type executorNode struct {
	address    string
	retryAfter time.Time
}

// executorPool hands out executor addresses round-robin, skipping nodes that
// failed within the cooldown window.
type executorPool struct {
	nodes    []*executorNode
	mu       sync.Mutex
	next     int
	cooldown time.Duration
}

type connPool struct {
	address string
	idle    chan net.Conn
	sem     chan struct{}
	dial    func(context.Context) (net.Conn, error)
}

func newConnPool(address string, maxSize int, dial func(context.Context) (net.Conn, error)) *connPool {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &connPool{
		address: address,
		idle:    make(chan net.Conn, maxSize),
		sem:     make(chan struct{}, maxSize),
		dial:    dial,
	}
}

func (p *connPool) Get(ctx context.Context) (net.Conn, error) {
	select {
	case conn := <-p.idle:
		return conn, nil
	default:
	}

	select {
	case p.sem <- struct{}{}:
		conn, err := p.dial(ctx)
		if err != nil {
			<-p.sem
			return nil, err
		}
		return conn, nil
	case conn := <-p.idle:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *connPool) Put(conn net.Conn) {
	if conn == nil {
		return
	}
	select {
	case p.idle <- conn:
	default:
		p.Discard(conn)
	}
}

// Discard closes a connection that must not be reused and frees its slot.
func (p *connPool) Discard(conn net.Conn) {
	if conn != nil {
		_ = conn.Close()
	}
	select {
	case <-p.sem:
	default:
	}
}

func (p *connPool) Close() {
	for {
		select {
		case conn := <-p.idle:
			p.Discard(conn)
		default:
			return
		}
	}
}

func newExecutorPool(addresses []string, cooldown time.Duration) (*executorPool, error) {
	unique := make(map[string]struct{}, len(addresses))
	nodes := make([]*executorNode, 0, len(addresses))
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, exists := unique[addr]; exists {
			continue
		}
		unique[addr] = struct{}{}
		nodes = append(nodes, &executorNode{address: addr})
	}
	if len(nodes) == 0 {
		return nil, errors.New("no valid python executor addresses provided")
	}
	return &executorPool{
		nodes:    nodes,
		cooldown: cooldown,
	}, nil
}

func (p *executorPool) Next() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	for checked := 0; checked < len(p.nodes); checked++ {
		node := p.nodes[p.next]
		p.next = (p.next + 1) % len(p.nodes)
		if now.After(node.retryAfter) {
			return node.address, nil
		}
	}
	return "", apperrors.WrapError(apperrors.ErrServiceUnavailable, "no healthy python executors available")
}

func (p *executorPool) MarkFailure(address string) {
	p.setRetryAfter(address, time.Now().Add(p.cooldown))
}

func (p *executorPool) MarkSuccess(address string) {
	p.setRetryAfter(address, time.Time{})
}

func (p *executorPool) setRetryAfter(address string, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, node := range p.nodes {
		if node.address == address {
			node.retryAfter = at
			return
		}
	}
}

func (p *executorPool) Addresses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	addrs := make([]string, 0, len(p.nodes))
	for _, node := range p.nodes {
		addrs = append(addrs, node.address)
	}
	return addrs
}

// StatefulPythonTool sends code to remote Python executors. Each session is
// bound to the executor that first served it, because the executor keeps
// the session's variables (the loaded DataFrame among them) in memory.
type StatefulPythonTool struct {
	pool                      *executorPool
	logger                    *zap.Logger
	dialTimeout               time.Duration
	ioTimeout                 time.Duration
	sessionMu                 sync.RWMutex
	sessionAddr               map[string]string
	connPoolsMu               sync.RWMutex
	connPools                 map[string]*connPool
	maxConnectionsPerExecutor int
}

func NewStatefulPythonTool(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*StatefulPythonTool, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	pool, err := newExecutorPool(cfg.PythonExecutorAddresses, cfg.PythonExecutorCooldownSeconds)
	if err != nil {
		return nil, err
	}
	tool := &StatefulPythonTool{
		pool:                      pool,
		logger:                    logger,
		dialTimeout:               cfg.PythonExecutorDialTimeoutSeconds,
		ioTimeout:                 cfg.PythonExecutorIOTimeoutSeconds,
		sessionAddr:               make(map[string]string),
		connPools:                 make(map[string]*connPool),
		maxConnectionsPerExecutor: cfg.PythonExecutorMaxConnections,
	}
	if err := tool.ensureInitialConnectivity(ctx); err != nil {
		return nil, err
	}
	logger.Info("Python tool initialized", zap.Strings("addresses", tool.pool.Addresses()))
	return tool, nil
}

func (t *StatefulPythonTool) getConnPool(address string) *connPool {
	t.connPoolsMu.RLock()
	pool := t.connPools[address]
	t.connPoolsMu.RUnlock()
	if pool != nil {
		return pool
	}

	t.connPoolsMu.Lock()
	defer t.connPoolsMu.Unlock()
	if pool = t.connPools[address]; pool == nil {
		pool = newConnPool(address, t.maxConnectionsPerExecutor, func(ctx context.Context) (net.Conn, error) {
			d := &net.Dialer{Timeout: t.dialTimeout}
			return d.DialContext(ctx, "tcp", address)
		})
		t.connPools[address] = pool
	}
	return pool
}

func (t *StatefulPythonTool) ensureInitialConnectivity(ctx context.Context) error {
	var lastErr error
	for _, addr := range t.pool.Addresses() {
		cp := t.getConnPool(addr)
		conn, err := cp.Get(ctx)
		if err != nil {
			t.pool.MarkFailure(addr)
			lastErr = err
			t.logger.Warn("Initial executor health check failed", zap.String("address", addr), zap.Error(err))
			continue
		}
		cp.Put(conn)
		t.pool.MarkSuccess(addr)
		return nil
	}
	return fmt.Errorf("unable to reach any python executor: %w", lastErr)
}

// execute runs one request/response exchange:
// "<sessionID>|<code><|EOM|>" out, output terminated by <|EOM|> back.
func (t *StatefulPythonTool) execute(ctx context.Context, conn net.Conn, code string, sessionID string) (string, error) {
	deadline := time.Now().Add(t.ioTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if _, err := io.WriteString(conn, sessionID+"|"+code+EOM_TOKEN); err != nil {
		return "", fmt.Errorf("send code: %w", err)
	}

	var b strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			b.Write(buf[:n])
			if s := b.String(); strings.Contains(s, EOM_TOKEN) {
				return strings.TrimSpace(strings.ReplaceAll(s, EOM_TOKEN, "")), nil
			}
		}
		if err != nil {
			return "", fmt.Errorf("read result: %w", err)
		}
	}
}

// Call executes code in the session's executor, failing over to the next
// healthy executor when the bound one is unreachable.
func (t *StatefulPythonTool) Call(ctx context.Context, code string, sessionID string) (string, error) {
	tried := make(map[string]struct{})

	t.sessionMu.RLock()
	boundAddr, bound := t.sessionAddr[sessionID]
	t.sessionMu.RUnlock()
	if bound {
		result, err := t.callExecutor(ctx, boundAddr, code, sessionID)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		tried[boundAddr] = struct{}{}
		t.unbind(sessionID)
	}

	var lastErr error
	for attempts := 0; attempts < len(t.pool.Addresses()); attempts++ {
		addr, err := t.pool.Next()
		if err != nil {
			if lastErr != nil {
				return "", fmt.Errorf("no healthy python executors available: %w", lastErr)
			}
			return "", err
		}
		if _, seen := tried[addr]; seen {
			continue
		}
		tried[addr] = struct{}{}

		result, err := t.callExecutor(ctx, addr, code, sessionID)
		if err == nil {
			t.sessionMu.Lock()
			t.sessionAddr[sessionID] = addr
			t.sessionMu.Unlock()
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	if lastErr != nil {
		return "", fmt.Errorf("all python executors failed: %w", lastErr)
	}
	return "", apperrors.WrapError(apperrors.ErrServiceUnavailable, "no healthy python executors available")
}

func (t *StatefulPythonTool) callExecutor(ctx context.Context, addr, code, sessionID string) (string, error) {
	cp := t.getConnPool(addr)
	conn, err := cp.Get(ctx)
	if err != nil {
		t.pool.MarkFailure(addr)
		t.logger.Warn("Failed to connect to python executor", zap.String("address", addr), zap.Error(err))
		return "", fmt.Errorf("dial python server %s: %w", addr, err)
	}

	result, err := t.execute(ctx, conn, code, sessionID)
	if err != nil {
		cp.Discard(conn)
		t.pool.MarkFailure(addr)
		t.logger.Warn("Python executor call failed", zap.String("address", addr), zap.Error(err))
		return "", fmt.Errorf("executor %s: %w", addr, err)
	}

	cp.Put(conn)
	t.pool.MarkSuccess(addr)
	t.logger.Debug("Python code executed", zap.String("address", addr), zap.String("session_id", sessionID))
	return result, nil
}

func (t *StatefulPythonTool) unbind(sessionID string) {
	t.sessionMu.Lock()
	defer t.sessionMu.Unlock()
	delete(t.sessionAddr, sessionID)
}

// CleanupSession removes the session binding from the executor pool
func (t *StatefulPythonTool) CleanupSession(sessionID string) {
	t.unbind(sessionID)
	t.logger.Info("Python session cleaned up", zap.String("session_id", sessionID))
}

func (t *StatefulPythonTool) Close() {
	t.connPoolsMu.Lock()
	defer t.connPoolsMu.Unlock()
	for addr, pool := range t.connPools {
		pool.Close()
		delete(t.connPools, addr)
	}
}
