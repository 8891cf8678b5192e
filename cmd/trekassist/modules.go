package main

// Compiled-in modules. Each registers itself with the core registry and is
// activated by an entry under modules: in the configuration.
import (
	_ "github.com/flemzord/trekassist/internal/gateway"
	_ "github.com/flemzord/trekassist/modules/conversation/sqlite"
	_ "github.com/flemzord/trekassist/modules/embedding/openai"
	_ "github.com/flemzord/trekassist/modules/provider/anthropic"
	_ "github.com/flemzord/trekassist/modules/provider/openai"
	_ "github.com/flemzord/trekassist/modules/vectorstore/qdrant"
)
