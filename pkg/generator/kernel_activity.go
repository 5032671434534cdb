package generator

import (
	"fmt"

	"github.com/mosajjal/ocsf-composer/pkg/ocsf"
)

// kernelOperation is an operation reported by the kernel monitor with the
// activity it is filed under
type kernelOperation struct {
	ActivityID int
	Name       string
}

type kernelActivity struct {
	base
	operations    []kernelOperation
	modules       []string
	syscalls      []string
	parameters    []string
	architectures []string
}

// NewKernelActivity returns a generator for class 1003
func NewKernelActivity(cfg Config) Generator {
	return &kernelActivity{
		base: newBase(ocsf.KernelActivity, "Kernel Monitor", cfg),
		operations: []kernelOperation{
			{1, "module_load"}, {3, "module_unload"}, {99, "parameter_change"},
			{4, "syscall"}, {99, "capability_change"},
		},
		modules:       []string{"tcp_cubic", "ext4", "nvidia", "bluetooth", "usb_storage", "iptable_filter"},
		syscalls:      []string{"read", "write", "open", "close", "fork", "exec", "socket", "connect"},
		parameters:    []string{"vm.swappiness", "net.ipv4.tcp_keepalive_time", "kernel.shmmax", "net.core.wmem_max"},
		architectures: []string{"x86_64", "aarch64", "amd64"},
	}
}

func (g *kernelActivity) Generate() (ocsf.Event, error) {
	op, err := pick(g.faker, g.operations)
	if err != nil {
		return nil, g.fail("kernel.operation", err)
	}
	arch, err := pick(g.faker, g.architectures)
	if err != nil {
		return nil, g.fail("kernel.architecture", err)
	}

	ev, err := g.header(op.ActivityID, ocsf.SeverityInformational, ocsf.StatusSuccess)
	if err != nil {
		return nil, err
	}
	kernel := map[string]any{
		"version":      fmt.Sprintf("%d.%d.%d", g.faker.Number(4, 6), g.faker.Number(0, 19), g.faker.Number(0, 99)),
		"architecture": arch,
		"operation":    op.Name,
	}

	switch op.Name {
	case "module_load", "module_unload":
		module, err := pick(g.faker, g.modules)
		if err != nil {
			return nil, g.fail("kernel.module.name", err)
		}
		kernel["module"] = map[string]any{
			"name":       module,
			"parameters": g.faker.RandomString([]string{"", "debug=1", "async=true"}),
		}
	case "syscall":
		call, err := pick(g.faker, g.syscalls)
		if err != nil {
			return nil, g.fail("kernel.syscall.name", err)
		}
		kernel["syscall"] = map[string]any{
			"name":      call,
			"arguments": fmt.Sprintf("fd=%d,size=%d", g.faker.Number(0, 1000), g.faker.Number(1, 4096)),
		}
	case "parameter_change":
		param, err := pick(g.faker, g.parameters)
		if err != nil {
			return nil, g.fail("kernel.parameter.name", err)
		}
		kernel["parameter"] = map[string]any{
			"name":      param,
			"old_value": fmt.Sprint(g.faker.Number(100, 1000)),
			"new_value": fmt.Sprint(g.faker.Number(100, 1000)),
		}
	}

	ev["kernel"] = kernel
	ev["process"] = map[string]any{
		"pid":  g.faker.Number(1, 65535),
		"name": "kernel_task",
		"file": map[string]any{"path": "/sbin/kernel_task"},
	}
	ev["device"] = map[string]any{
		"hostname": fmt.Sprintf("host-%d", g.faker.Number(1000, 9999)),
		"uid":      g.faker.UUID(),
	}
	return g.finish(ev)
}
