package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mostafazog/mro-harvest/cmd/mro-harvest/cmd"
	"github.com/mostafazog/mro-harvest/internal/config"
	"github.com/mostafazog/mro-harvest/internal/registry"
	"github.com/mostafazog/mro-harvest/internal/state"
)

// Exit codes, distinguishable so wrappers can decide whether to retry.
const (
	exitGeneric   = 1
	exitInvalid   = 2 // configuration that can never succeed
	exitCorrupt   = 3 // state store needs operator intervention
	exitTransient = 4 // registry/network failure, safe to retry
)

func main() {
	err := cmd.Execute()
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, config.ErrInvalid):
		return exitInvalid
	case errors.Is(err, state.ErrCorrupt):
		return exitCorrupt
	case registry.IsTransient(err):
		return exitTransient
	}
	return exitGeneric
}
