package engine

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
)

// workerCount resolves the configured pool size. Zero or less means one
// goroutine per spare CPU, leaving one for the tick driver.
func workerCount(configured int) int {
	if configured > 0 {
		return configured
	}
	return max(runtime.GOMAXPROCS(0)-1, 1)
}

type job struct {
	part int
	fn   func(part, parts int)
	errs []error
	wg   *sync.WaitGroup
}

// pool is a fixed set of goroutines that run one partition each per call
// to run.
type pool struct {
	size int
	jobs chan job
	done sync.WaitGroup
}

func newPool(size int) *pool {
	p := &pool{size: size, jobs: make(chan job)}
	p.done.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *pool) worker() {
	defer p.done.Done()
	for j := range p.jobs {
		j.errs[j.part] = p.exec(j)
		j.wg.Done()
	}
}

func (p *pool) exec(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker %d: panic: %v", j.part, r)
		}
	}()
	j.fn(j.part, p.size)
	return nil
}

// run calls fn once per partition, concurrently, and waits for all of them.
// Panics are recovered and returned joined.
func (p *pool) run(fn func(part, parts int)) error {
	var wg sync.WaitGroup
	errs := make([]error, p.size)
	wg.Add(p.size)
	for i := 0; i < p.size; i++ {
		p.jobs <- job{part: i, fn: fn, errs: errs, wg: &wg}
	}
	wg.Wait()
	return errors.Join(errs...)
}

// close stops the workers and waits for them to exit.
func (p *pool) close() {
	close(p.jobs)
	p.done.Wait()
}
