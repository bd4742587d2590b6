package probe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"go.uber.org/zap"

	"github.com/25smoking/ovalprobe/internal/oval"
	"github.com/25smoking/ovalprobe/internal/sexp"
)

const (
	spawnRetries = 3
	spawnBackoff = 200 * time.Millisecond
	spawnMaxWait = 2 * time.Second
)

type conn struct {
	w    io.WriteCloser
	r    *bufio.Reader
	wait func() error
}

// ProcessHandler 是在子进程中运行的探针在本进程内的代理。
// 子进程在 INIT 时启动，FREE 时关闭输入并等待退出。
type ProcessHandler struct {
	subtype oval.Subtype
	logger  *zap.Logger
	dial    func(ctx context.Context) (*conn, error)

	mu   sync.Mutex
	conn *conn
}

// NewProcessHandler 创建一个通过执行 path args... 启动探针进程的处理器
func NewProcessHandler(subtype oval.Subtype, path string, args []string, logger *zap.Logger) *ProcessHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &ProcessHandler{subtype: subtype, logger: logger}
	p.dial = func(ctx context.Context) (*conn, error) {
		cmd := exec.CommandContext(ctx, path, args...)
		cmd.Stderr = os.Stderr

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		logger.Debug("started probe process", zap.String("probe", string(subtype)), zap.Int("pid", cmd.Process.Pid))
		return &conn{w: stdin, r: bufio.NewReader(stdout), wait: cmd.Wait}, nil
	}
	return p
}

func (p *ProcessHandler) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		var c *conn
		err := retry.Do(func() error {
			var derr error
			c, derr = p.dial(ctx)
			return derr
		}, retry.Attempts(spawnRetries), retry.Delay(spawnBackoff), retry.MaxDelay(spawnMaxWait))
		if err != nil {
			return fmt.Errorf("%w: start %s probe: %v", ErrInit, p.subtype, err)
		}
		p.conn = c
	}
	_, err := p.roundTrip(InitRequest{})
	return err
}

func (p *ProcessHandler) Open(ctx context.Context) error  { return p.simple(OpenRequest{}) }
func (p *ProcessHandler) Close(ctx context.Context) error { return p.simple(CloseRequest{}) }
func (p *ProcessHandler) Reset(ctx context.Context) error { return p.simple(ResetRequest{}) }

func (p *ProcessHandler) Eval(ctx context.Context, obj *oval.Object) (*Cobj, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil, ErrInit
	}
	cobj, err := p.roundTrip(EvalRequest{Object: obj})
	if err != nil {
		return nil, err
	}
	if cobj == nil {
		return nil, fmt.Errorf("%w: %s probe returned no collected object", ErrFatal, p.subtype)
	}
	return cobj, nil
}

// Free 释放远端资源并等待子进程退出
func (p *ProcessHandler) Free(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}
	_, err := p.roundTrip(FreeRequest{})

	c := p.conn
	p.conn = nil
	c.w.Close()
	if c.wait != nil {
		if werr := c.wait(); werr != nil && err == nil {
			err = fmt.Errorf("%w: %s probe exited: %v", ErrFatal, p.subtype, werr)
		}
	}
	return err
}

func (p *ProcessHandler) simple(req Request) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return ErrInit
	}
	_, err := p.roundTrip(req)
	return err
}

// roundTrip 发送一个请求并等待响应，调用方持有 p.mu
func (p *ProcessHandler) roundTrip(req Request) (*Cobj, error) {
	v, err := encodeRequest(p.subtype, req)
	if err != nil {
		return nil, err
	}
	if err := sexp.WriteFrame(p.conn.w, v); err != nil {
		return nil, fmt.Errorf("%w: send %s to %s probe: %v", ErrFatal, req.Action(), p.subtype, err)
	}
	resp, err := sexp.ReadFrame(p.conn.r)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response from %s probe: %v", ErrFatal, req.Action(), p.subtype, err)
	}
	return decodeResponse(resp)
}
