package config

import (
	"context"
	"fmt"
	"runtime"
)

func init() {
	SetLogger(NewLogger(StringValue("MSS_LOG_LEVEL")))

	if BoolValue("MSS_DEBUG") {
		LogInfo(context.Background(), fmt.Sprintf("multisync config.init(): arch: %v", runtime.GOOS))
		LogInfo(context.Background(), "multisync config initialized with environment variable defaults")
	}
}
