package tasks

import (
	"github.com/google/uuid"
)

// Signature 一次待执行的调用，对应 Celery 的 task.s(...)
type Signature struct {
	ID   string        `json:"id,omitempty"`
	Task string        `json:"task"`
	Args []interface{} `json:"args"`
}

// Sig 构造 Signature
func Sig(task string, args ...interface{}) Signature {
	if args == nil {
		args = []interface{}{}
	}
	return Signature{Task: task, Args: args}
}

func (s Signature) withID() Signature {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return s
}

// Envelope 队列中的消息
type Envelope struct {
	ID      string        `json:"id"`
	Task    string        `json:"task"`
	Args    []interface{} `json:"args"`
	Retries int           `json:"retries"`
	// Chain 成功后依次执行的后续调用
	Chain   []Signature `json:"chain,omitempty"`
	ChordID string      `json:"chord_id,omitempty"`
	// Headers 承载 traceparent 等传播字段
	Headers map[string]string `json:"headers,omitempty"`
}

func newEnvelope(sig Signature) *Envelope {
	sig = sig.withID()
	return &Envelope{ID: sig.ID, Task: sig.Task, Args: sig.Args}
}
