package config

import "os"

func IsDebug() bool {
	return os.Getenv("ENGRAM_DEBUG") == "1"
}
