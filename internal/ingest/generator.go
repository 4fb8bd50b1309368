package ingest

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jsadleir/callscope/internal/store"
)

const agentPoolSize = 20

var agentLines = []string{
	"Thank you for calling. How can I assist you today?",
	"I understand your concern. Let me check that for you.",
	"I apologize for the inconvenience. Let me see what I can do.",
	"That's a great question. Based on your account, I can see that...",
	"I'd be happy to help you with that. Can you provide me with...",
	"Let me transfer you to our specialist team for better assistance.",
	"I've updated your account. Is there anything else I can help with?",
	"Thank you for your patience. I found the information you need.",
}

var customerLines = []string{
	"Hi, I'm having trouble with my recent order.",
	"Yes, I've been waiting for a refund for two weeks now.",
	"That doesn't sound right. Can you check again?",
	"I'm really frustrated with this service.",
	"Thank you so much for your help!",
	"Can you explain why this happened?",
	"I need to speak with a manager about this.",
	"That resolves my issue. I appreciate your assistance.",
}

// Generator produces synthetic call records for seeding a development
// database. Transcripts alternate agent and customer turns drawn from a
// fixed line pool.
type Generator struct {
	rng    *rand.Rand
	agents []string
}

func NewGenerator(seed int64) *Generator {
	agents := make([]string, agentPoolSize)
	for i := range agents {
		agents[i] = fmt.Sprintf("agent_%03d", i+1)
	}
	return &Generator{
		rng:    rand.New(rand.NewSource(seed)),
		agents: agents,
	}
}

// Generate returns n synthetic calls with start times spread over the last
// 30 days.
func (g *Generator) Generate(n int) []store.Call {
	now := time.Now().UTC()
	calls := make([]store.Call, 0, n)
	for i := 0; i < n; i++ {
		start := now.Add(-time.Duration(g.rng.Intn(30*24*60)) * time.Minute)
		calls = append(calls, store.Call{
			CallID:          fmt.Sprintf("call_%06d", i),
			AgentID:         g.agents[g.rng.Intn(len(g.agents))],
			CustomerID:      "customer_" + uuid.NewString()[:8],
			Language:        "en",
			StartTime:       start,
			DurationSeconds: 180 + g.rng.Intn(1621), // 3-30 minutes
			Transcript:      g.transcript(),
		})
	}
	return calls
}

func (g *Generator) transcript() string {
	exchanges := 5 + g.rng.Intn(11)
	parts := make([]string, 0, exchanges)
	for j := 0; j < exchanges; j++ {
		if j%2 == 0 {
			parts = append(parts, "Agent: "+agentLines[g.rng.Intn(len(agentLines))])
		} else {
			parts = append(parts, "Customer: "+customerLines[g.rng.Intn(len(customerLines))])
		}
	}
	return strings.Join(parts, "\n")
}
