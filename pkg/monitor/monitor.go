package monitor

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

var monitorCtx context.Context
var monitorCancel context.CancelFunc

type Task struct {
	sTime   int64
	lTime   int64
	success bool
}

// Monitor keeps a sliding window of completed tasks and derives average
// latency and success rate over that window.
type Monitor struct {
	name           string
	tasks          []Task
	count          int
	headindex      int
	tailindex      int
	maxLen         int
	maxTaskTime    int64
	windowdur      int64
	totalTimeCount int64
	successCount   int64
	rwmu           sync.RWMutex
	insertChan     chan *Task
}

func NewMonitor(name string, maxLen int, maxTaskTime int64, windowdur int64) *Monitor {
	m := &Monitor{
		name:        name,
		tasks:       make([]Task, maxLen),
		maxLen:      maxLen,
		maxTaskTime: maxTaskTime,
		windowdur:   windowdur,
		insertChan:  make(chan *Task, maxLen),
	}
	registerMonitor(m)
	m.Run()
	return m
}

func NewTask() *Task {
	return &Task{
		sTime: time.Now().UnixMilli(),
	}
}

func (m *Monitor) CompleteTask(t *Task, success bool) {
	t.lTime = time.Now().UnixMilli()
	t.success = success
	select {
	case m.insertChan <- t:
	default:
		// window updates are best effort, never block the caller
	}
}

func (m *Monitor) GetStats() (avgTime float64, successRate float64, count int) {
	m.rwmu.RLock()
	defer m.rwmu.RUnlock()
	if m.count == 0 {
		return 0, 0, 0
	}
	avgTime = float64(m.totalTimeCount) / float64(m.count)
	successRate = float64(m.successCount) / float64(m.count)
	count = m.count
	return
}

func (m *Monitor) Run() {
	go func() {
		if monitorCtx == nil {
			monitorCtx, monitorCancel = context.WithCancel(context.Background())
			zap.L().Warn("monitor: package context was not initialized; created default background context")
		}

		for {
			select {
			case <-monitorCtx.Done():
				zap.L().Info("Monitor " + m.name + " received shutdown signal, exiting")
				return
			case t := <-m.insertChan:
				m.insert(t)
			}
		}
	}()
}

func (m *Monitor) insert(t *Task) {
	m.rwmu.Lock()
	defer m.rwmu.Unlock()

	// evict tasks that fell out of the window
	now := time.Now().UnixMilli()
	for m.headindex != m.tailindex {
		oldTask := &m.tasks[m.headindex]
		if oldTask.lTime == 0 || now-oldTask.lTime < m.windowdur {
			break
		}
		m.headindex = (m.headindex + 1) % m.maxLen
		if m.count > 0 {
			m.count--
		}
		m.totalTimeCount -= (oldTask.lTime - oldTask.sTime)
		if oldTask.success && m.successCount > 0 {
			m.successCount--
		}
	}

	// buffer full: overwrite the oldest entry
	if m.count == m.maxLen {
		oldest := &m.tasks[m.headindex]
		m.totalTimeCount -= (oldest.lTime - oldest.sTime)
		if oldest.success && m.successCount > 0 {
			m.successCount--
		}
		m.headindex = (m.headindex + 1) % m.maxLen
		if m.count > 0 {
			m.count--
		}
	}

	m.tasks[m.tailindex] = *t
	m.tailindex = (m.tailindex + 1) % m.maxLen
	m.count++
	m.totalTimeCount += (t.lTime - t.sTime)
	if t.success {
		m.successCount++
	}
}

func waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Monitor shutdown signal received, canceling monitor context")
	if monitorCancel != nil {
		monitorCancel()
	}
}

func InitMonitor() {
	monitorCtx, monitorCancel = context.WithCancel(context.Background())
	go waitForShutdown()
}
