package main

import (
	"context"
	"questwatch/cmd/questwatch/commands"
	"questwatch/lib/serviceutil"
)

func main() {
	ctx := serviceutil.SignalContext(context.Background())
	commands.ExecuteContext(ctx)
}
