package wasmengine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/tomyedwab/sqlbridge/engine"
)

// call tracks one entry point invocation. Deliveries are translated into
// callback invocations and run in order on a goroutine of their own, so the
// module is never blocked on the caller. Nothing is delivered after the
// terminal callback.
type call struct {
	op     string
	handle func(errMsg, doc string) (terminal bool, run func())
	onFail func(error)

	mu       sync.Mutex
	done     bool
	queue    []func()
	draining bool
}

func newCall(op string, handle func(errMsg, doc string) (bool, func()), onFail func(error)) *call {
	return &call{op: op, handle: handle, onFail: onFail}
}

// deliver records one document from the module.
func (c *call) deliver(errMsg, doc string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return
	}
	terminal, run := c.handle(errMsg, doc)
	c.done = terminal
	c.enqueueLocked(run)
}

// fail ends the call with err unless it has already ended.
func (c *call) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return
	}
	c.done = true
	c.enqueueLocked(func() { c.onFail(err) })
}

func (c *call) terminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *call) enqueueLocked(run func()) {
	c.queue = append(c.queue, run)
	if !c.draining {
		c.draining = true
		go c.drain()
	}
}

func (c *call) drain() {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.draining = false
			c.mu.Unlock()
			return
		}
		run := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.mu.Unlock()

		run()
	}
}

// openCall expects a single document holding the new handle in decimal.
func openCall(cb engine.OpenCallback) *call {
	return newCall("open database", func(errMsg, doc string) (bool, func()) {
		if errMsg != "" {
			return true, func() { cb(0, engine.NewError("open database", errMsg)) }
		}
		h, err := strconv.ParseUint(doc, 10, 32)
		if err != nil {
			return true, func() { cb(0, engine.NewError("open database", fmt.Sprintf("invalid handle %q", doc))) }
		}
		return true, func() { cb(engine.Handle(h), nil) }
	}, func(err error) { cb(0, err) })
}

func execCall(cb engine.ExecCallback) *call {
	return newCall("exec", func(errMsg, _ string) (bool, func()) {
		if errMsg != "" {
			return true, func() { cb(engine.NewError("exec", errMsg)) }
		}
		return true, func() { cb(nil) }
	}, cb)
}

// queryCall treats every non-empty document as a row. An empty document
// ends the results.
func queryCall(cb engine.RowCallback) *call {
	return newCall("query", func(errMsg, doc string) (bool, func()) {
		if errMsg != "" {
			return true, func() { cb(nil, engine.NewError("query", errMsg)) }
		}
		if doc == "" {
			return true, func() { cb(nil, nil) }
		}
		var row any
		if err := json.Unmarshal([]byte(doc), &row); err != nil {
			return true, func() { cb(nil, engine.NewError("query", fmt.Sprintf("invalid row document: %v", err))) }
		}
		return false, func() { cb(row, nil) }
	}, func(err error) { cb(nil, err) })
}
