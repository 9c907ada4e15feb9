package companion

import (
	"context"
	"sync"
	"time"
)

// PollFunc は1回分の取得を行い、結果を反映する関数を返す。
// 返された関数は一時停止中でなければPollerが呼び出す。
type PollFunc func(ctx context.Context) (apply func(), err error)

// Poller は一定間隔でPollFuncを呼び出す。
//
// 前回の取得が終わっていない間に来たtickは読み飛ばす。
// Pause中に完了した取得、およびPause前に開始した取得の結果は捨てる。
// Stopは最終操作で、以降のResumeは何もしない。
// applyとonErrorの中からPauseやStopを呼んではならない。
type Poller struct {
	interval time.Duration
	poll     PollFunc
	onError  func(error)

	// applyMu は結果の反映とPauseを直列化する。
	// Pauseから戻った時点で反映中の結果はない。
	applyMu sync.Mutex

	mu         sync.Mutex
	paused     bool
	stopped    bool
	inFlight   bool
	generation uint64
	ticker     *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller はPollerを生成する。onErrorは取得に失敗したときに呼ばれる。
func NewPoller(interval time.Duration, poll PollFunc, onError func(error)) *Poller {
	if onError == nil {
		onError = func(error) {}
	}
	return &Poller{
		interval: interval,
		poll:     poll,
		onError:  onError,
	}
}

// Start は直ちに1回取得し、以降interval毎に取得する。
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.stopped || p.ticker != nil {
		p.mu.Unlock()
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.ticker = time.NewTicker(p.interval)
	ticker := p.ticker
	p.mu.Unlock()

	p.tick()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				p.tick()
			}
		}
	}()
}

// Pause はポーリングを一時停止する。進行中の取得の結果は反映されない。
func (p *Poller) Pause() {
	p.applyMu.Lock()
	defer p.applyMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	p.generation++
}

// Resume はポーリングを再開する。次の取得はintervalの経過後に行う。
func (p *Poller) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.paused = false
	if p.ticker != nil {
		p.ticker.Reset(p.interval)
	}
}

// Stop はポーリングを終了し、進行中の取得の終了を待つ。
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.generation++
	if p.ticker != nil {
		p.ticker.Stop()
	}
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

// Paused は一時停止中かどうかを返す。
func (p *Poller) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// tick は取得中でなければ新しい取得を開始する。
func (p *Poller) tick() {
	p.mu.Lock()
	if p.paused || p.stopped || p.inFlight {
		p.mu.Unlock()
		return
	}
	p.inFlight = true
	gen := p.generation
	ctx := p.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		apply, err := p.poll(ctx)

		p.applyMu.Lock()
		defer p.applyMu.Unlock()

		p.mu.Lock()
		p.inFlight = false
		discard := p.paused || p.stopped || p.generation != gen
		p.mu.Unlock()

		if discard {
			return
		}
		if err != nil {
			p.onError(err)
			return
		}
		if apply != nil {
			apply()
		}
	}()
}
