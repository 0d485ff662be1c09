package main

import (
    "context"
    "errors"
    "fmt"
    "os"
    "os/signal"
    "syscall"

    "github.com/local/shasdl/internal/cli"
    cfgpkg "github.com/local/shasdl/internal/config"
    logpkg "github.com/local/shasdl/internal/logger"
)

func main() {
    cfg, err := cfgpkg.Load()
    if err != nil {
        fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
        os.Exit(2)
    }

    // Init logging; the console goes to stderr so stdout carries reports only
    _ = logpkg.Init(logpkg.Options{
        Level: cfg.Logging.Level,
        Pretty: cfg.Logging.Pretty,
        File: cfg.Logging.File,
        MaxSizeMB: cfg.Logging.MaxSizeMB,
        MaxBackups: cfg.Logging.MaxBackups,
        MaxAgeDays: cfg.Logging.MaxAgeDays,
        Compress: cfg.Logging.Compress,
        Console: os.Stderr,
        Service: "shasdl",
        SendToAxiom: cfg.Axiom.Send && cfg.Axiom.APIKey != "",
        AxiomAPIKey: cfg.Axiom.APIKey,
        AxiomOrgID: cfg.Axiom.OrgID,
        AxiomDataset: cfg.Axiom.Dataset,
        AxiomFlush: cfg.Axiom.FlushInterval,
    })

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    err = cli.Execute(ctx, cfg)
    stop()
    logpkg.Close()

    switch {
    case err == nil:
    case errors.Is(err, context.Canceled):
        fmt.Fprintln(os.Stderr, "interrupted")
        os.Exit(130)
    case cli.IsUsageError(err):
        fmt.Fprintf(os.Stderr, "Error: %v\n", err)
        os.Exit(2)
    default:
        fmt.Fprintf(os.Stderr, "Error: %v\n", err)
        os.Exit(1)
    }
}
