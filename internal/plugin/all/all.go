// Package all imports every plugin so their init() functions register them.
package all

import (
	_ "github.com/misteriosai/agent-memory/internal/plugin/cache/local"
	_ "github.com/misteriosai/agent-memory/internal/plugin/cache/noop"
	_ "github.com/misteriosai/agent-memory/internal/plugin/cache/redis"
	_ "github.com/misteriosai/agent-memory/internal/plugin/embed/disabled"
	_ "github.com/misteriosai/agent-memory/internal/plugin/embed/local"
	_ "github.com/misteriosai/agent-memory/internal/plugin/embed/openai"
	_ "github.com/misteriosai/agent-memory/internal/plugin/embed/tei"
	_ "github.com/misteriosai/agent-memory/internal/plugin/trace/gormstore"
	_ "github.com/misteriosai/agent-memory/internal/plugin/trace/mongo"
	_ "github.com/misteriosai/agent-memory/internal/plugin/vector/chromem"
	_ "github.com/misteriosai/agent-memory/internal/plugin/vector/pgvector"
	_ "github.com/misteriosai/agent-memory/internal/plugin/vector/qdrant"
	_ "github.com/misteriosai/agent-memory/internal/plugin/vector/sqlitevec"
)
