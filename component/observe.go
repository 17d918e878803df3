package component

import (
	"fmt"
	"time"
)

// Metadata describes what a component is.
type Metadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// HealthStatus describes the current health state of a component.
type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	LastCheck  time.Time     `json:"last_check"`
	ErrorCount int           `json:"error_count"`
	Uptime     time.Duration `json:"uptime"`
}

// FlowMetrics describes the current data flow through a component.
type FlowMetrics struct {
	MessagesReceived  int64     `json:"messages_received"`
	MessagesEmitted   int64     `json:"messages_emitted"`
	MessagesPerSecond float64   `json:"messages_per_second"`
	ErrorRate         float64   `json:"error_rate"`
	LastActivity      time.Time `json:"last_activity"`
}

// Discoverable lets a management layer inspect running components.
type Discoverable interface {
	Meta() Metadata
	Health() HealthStatus
	DataFlow() FlowMetrics
}

var _ Discoverable = (*Component)(nil)

// Meta returns the component metadata.
func (c *Component) Meta() Metadata {
	return Metadata{
		Name:        c.id,
		Type:        "component",
		Description: fmt.Sprintf("message-passing component %s", c.id),
		Version:     Version,
	}
}

// Health returns the current health status of the component.
func (c *Component) Health() HealthStatus {
	return HealthStatus{
		Healthy:    c.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(c.handlerErrors.Load()),
		Uptime:     time.Since(c.startTime),
	}
}

// DataFlow returns the current data flow metrics.
func (c *Component) DataFlow() FlowMetrics {
	received := c.msgsReceived.Load()
	emitted := c.msgsEmitted.Load()
	errorCount := c.handlerErrors.Load()
	lastActivity, _ := c.lastActivity.Load().(time.Time)

	var messagesPerSecond float64
	if uptime := time.Since(c.startTime).Seconds(); uptime > 0 {
		messagesPerSecond = float64(received) / uptime
	}

	var errorRate float64
	if received > 0 {
		errorRate = float64(errorCount) / float64(received)
	}

	return FlowMetrics{
		MessagesReceived:  received,
		MessagesEmitted:   emitted,
		MessagesPerSecond: messagesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}
