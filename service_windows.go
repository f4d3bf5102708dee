//go:build windows

// Windows service support via github.com/kardianos/service. The engine can
// install itself as a background service and run through the normal
// Start/Stop lifecycle.
package main

import (
	"fmt"
	"time"

	"github.com/kardianos/service"
)

// program implements service.Interface by delegating to runApp.
type program struct {
	exit chan struct{}
}

// Start launches the engine in a goroutine; the service control manager
// expects Start to return promptly.
func (p *program) Start(s service.Service) error {
	p.exit = make(chan struct{})
	go func() {
		defer close(p.exit)
		runApp()
	}()
	return nil
}

// Stop asks the engine to shut down and waits for it to finish.
func (p *program) Stop(s service.Service) error {
	if stopApp != nil {
		stopApp()
	}
	select {
	case <-p.exit:
		return nil
	case <-time.After(90 * time.Second):
		return fmt.Errorf("timeout waiting for engine to stop")
	}
}

// serviceConfig describes the installed Windows service.
func serviceConfig() *service.Config {
	return &service.Config{
		Name:        "GenForge",
		DisplayName: "GenForge Image Generation Engine",
		Description: "Load-balanced concurrent AI image generation service",
		Option: service.KeyValue{
			"StartType": "automatic",
		},
	}
}

func newService() (service.Service, error) {
	s, err := service.New(&program{}, serviceConfig())
	if err != nil {
		return nil, fmt.Errorf("creating service: %w", err)
	}
	return s, nil
}

// RunAsService runs under the service control manager when not started
// interactively. Returns true if the process ran as a service.
func RunAsService() (bool, error) {
	s, err := newService()
	if err != nil {
		return false, err
	}
	if service.Interactive() {
		return false, nil
	}
	if err := s.Run(); err != nil {
		return true, fmt.Errorf("service run: %w", err)
	}
	return true, nil
}

// HandleServiceCommand executes install/uninstall/start/stop commands.
// Returns true when a command was handled and the process should exit.
func HandleServiceCommand(args []string) bool {
	if len(args) == 0 {
		return false
	}

	var action func(service.Service) error
	switch args[0] {
	case "install":
		action = service.Service.Install
	case "uninstall":
		action = service.Service.Uninstall
	case "start":
		action = service.Service.Start
	case "stop":
		action = service.Service.Stop
	default:
		return false
	}

	s, err := newService()
	if err != nil {
		fmt.Printf("Service error: %v\n", err)
		return true
	}
	if err := action(s); err != nil {
		fmt.Printf("Service %s failed: %v\n", args[0], err)
		return true
	}
	fmt.Printf("Service %s succeeded\n", args[0])
	return true
}
