package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mohit83k/radius-aaa/internal/config"
	"github.com/mohit83k/radius-aaa/internal/model"
	"github.com/mohit83k/radius-aaa/internal/redisclient"
)

// fixtures is the file format read by the load command.
type fixtures struct {
	Products []model.Product `json:"products"`
	Accounts []model.Account `json:"accounts"`
	NAS      []model.NAS     `json:"nas"`
}

var loadCmd = &cobra.Command{
	Use:   "load FILE",
	Short: "Load products, accounts and NAS devices from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoad,
}

var historyCmd = &cobra.Command{
	Use:   "history ACCOUNT",
	Short: "Print the billing records and tickets of an account as JSON lines",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func runLoad(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var f fixtures
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}

	client := redisclient.NewClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer client.Close()
	store := redisclient.NewRedisStore(client)
	ctx := cmd.Context()

	for i := range f.Products {
		if err := store.SaveProduct(ctx, &f.Products[i]); err != nil {
			return err
		}
	}
	for i := range f.Accounts {
		if err := store.SaveAccount(ctx, &f.Accounts[i]); err != nil {
			return err
		}
	}
	for i := range f.NAS {
		if err := store.SaveNAS(ctx, &f.NAS[i]); err != nil {
			return err
		}
	}
	log.WithFields(map[string]any{
		"products": len(f.Products),
		"accounts": len(f.Accounts),
		"nas":      len(f.NAS),
	}).Info("Fixtures loaded")
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	client := redisclient.NewClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer client.Close()
	store := redisclient.NewRedisStore(client)
	ctx := cmd.Context()

	records, err := store.ListBilling(ctx, args[0])
	if err != nil {
		return err
	}
	tickets, err := store.ListTickets(ctx, args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, r := range records {
		if err := enc.Encode(map[string]any{"billing": r}); err != nil {
			return err
		}
	}
	for _, t := range tickets {
		if err := enc.Encode(map[string]any{"ticket": t}); err != nil {
			return err
		}
	}
	return nil
}
