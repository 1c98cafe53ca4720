// Copyright (C) 2019-2025 Algorand, Inc.
// This file is part of go-blocklattice
//
// go-blocklattice is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// go-blocklattice is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with go-blocklattice.  If not, see <https://www.gnu.org/licenses/>.

// Package execpool runs deferred work on a bounded set of goroutines.
package execpool

import (
	"context"
	"runtime"
	"sync"
)

// The list of all valid priority values. When adding new ones, add them before numPrios.
// (i.e. there should be no gaps, and the first priority value should be zero)
const (
	LowPriority Priority = iota
	HighPriority

	// Note: numPrios must be the last value in this list.
	numPrios
)

// Priority defines the priority of a task submitted to the pool.
type Priority uint8

// ExecFunc is the function executed by the pool for every task.
type ExecFunc func(interface{}) interface{}

// ExecutionPool interface exposes the core functionality of the execution pool.
type ExecutionPool interface {
	Enqueue(enqueueCtx context.Context, t ExecFunc, arg interface{}, i Priority, out chan interface{}) error
	GetOwner() interface{}
	Shutdown()
	GetParallelism() int
}

type pool struct {
	wg          sync.WaitGroup
	owner       interface{}
	parallelism int
	inputs      []chan enqueuedTask
}

type enqueuedTask struct {
	execFunc ExecFunc
	arg      interface{}
	out      chan interface{}
}

// MakePool creates a pool with one worker per CPU.
func MakePool(owner interface{}) ExecutionPool {
	return MakePoolWithParallelism(owner, runtime.NumCPU())
}

// MakePoolWithParallelism creates a pool with the given number of workers.
func MakePoolWithParallelism(owner interface{}, parallelism int) ExecutionPool {
	if parallelism < 1 {
		parallelism = 1
	}
	p := &pool{
		inputs:      make([]chan enqueuedTask, numPrios),
		parallelism: parallelism,
		owner:       owner,
	}
	for i := range p.inputs {
		p.inputs[i] = make(chan enqueuedTask)
	}

	p.wg.Add(p.parallelism)
	for i := 0; i < p.parallelism; i++ {
		go p.worker()
	}
	return p
}

// GetParallelism returns the number of workers.
func (p *pool) GetParallelism() int {
	return p.parallelism
}

// GetOwner returns the owner object.
func (p *pool) GetOwner() interface{} {
	return p.owner
}

// Enqueue hands t to a worker, blocking until one is free or enqueueCtx is done.
func (p *pool) Enqueue(enqueueCtx context.Context, t ExecFunc, arg interface{}, i Priority, out chan interface{}) error {
	select {
	case p.inputs[i] <- enqueuedTask{
		execFunc: t,
		arg:      arg,
		out:      out,
	}:
		return nil
	case <-enqueueCtx.Done():
		return enqueueCtx.Err()
	}
}

// Shutdown stops the workers and waits for running tasks to finish.
func (p *pool) Shutdown() {
	for i := range p.inputs {
		close(p.inputs[i])
	}
	p.wg.Wait()
}

func (p *pool) worker() {
	var t enqueuedTask
	var ok bool
	lowPrio := p.inputs[LowPriority]
	highPrio := p.inputs[HighPriority]
	defer p.wg.Done()
	for {
		select {
		case t, ok = <-highPrio:
		default:
			select {
			case t, ok = <-highPrio:
			case t, ok = <-lowPrio:
			}
		}
		if !ok {
			return
		}
		res := t.execFunc(t.arg)
		if t.out != nil {
			t.out <- res
		}
	}
}
