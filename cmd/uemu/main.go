package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uemu-dev/uemu/internal/devices/sifivetest"
	"github.com/uemu-dev/uemu/internal/emulator"
	"github.com/uemu-dev/uemu/internal/host"
	"github.com/uemu-dev/uemu/internal/loader"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "uemu: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	elfFile := fs.String("file", "", "RISC-V ELF executable to boot")
	memoryMB := fs.Uint64("memory", 128, "DRAM size in MiB")
	signature := fs.String("signature", "", "Write the riscof signature region to this path")
	timeoutMS := fs.Int("timeout", 0, "Force shutdown after this many milliseconds")
	headless := fs.Bool("headless", false, "Run without an interactive console")
	configPath := fs.String("config", "", "YAML machine configuration")
	diskPath := fs.String("disk", "", "virtio-blk disk image")

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	if *elfFile == "" {
		return fmt.Errorf("no executable; use --file")
	}

	cfg := emulator.DefaultConfig()
	if *configPath != "" {
		loaded, err := emulator.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "memory" {
			cfg.MemoryMB = *memoryMB
		}
	})
	if *diskPath != "" {
		cfg.Disk = *diskPath
	}
	if *headless {
		cfg.Headless = true
	}

	var console *host.Console
	if cfg.Headless {
		console = host.NullConsole()
	} else {
		c, err := host.NewConsole()
		if err != nil {
			return fmt.Errorf("console setup: %w", err)
		}
		console = c
		defer console.Restore()
	}

	emu, err := emulator.New(cfg, console, console, nil)
	if err != nil {
		return err
	}
	defer emu.Close()

	info, err := emu.LoadELF(*elfFile)
	if err != nil {
		return err
	}
	slog.Info("ELF loaded", "path", *elfFile, "entry", fmt.Sprintf("%#016x", info.Entry))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		emu.Stop()
	}()

	if *timeoutMS > 0 {
		timer := time.AfterFunc(time.Duration(*timeoutMS)*time.Millisecond, func() {
			slog.Warn("timeout reached, stopping")
			emu.Stop()
		})
		defer timer.Stop()
	}

	if err := emu.Run(); err != nil {
		return err
	}

	if *signature != "" {
		if info.SigStart == 0 || info.SigEnd == 0 {
			return fmt.Errorf("signature requested but begin/end_signature symbols are missing")
		}
		if err := loader.DumpSignature(*signature, emu.Dram(), info.SigStart, info.SigEnd); err != nil {
			return err
		}
	}

	if emu.ShutdownStatus() == sifivetest.StatusPass && emu.ShutdownCode() == 0 {
		return nil
	}
	return fmt.Errorf("guest exited with status %#x code %d",
		emu.ShutdownStatus(), emu.ShutdownCode())
}
