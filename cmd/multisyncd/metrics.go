package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thisdougb/multisync/internal/config"
)

var (
	addCmd = &cobra.Command{
		Use:   "add <metric>",
		Short: "Start tracking a metric",
		Long: `Start tracking a metric. With a value source configured the metric must
resolve to a number for the first online entity, use --force to skip that.`,
		Args: cobra.ExactArgs(1),
		RunE: runAdd,
	}

	removeCmd = &cobra.Command{
		Use:   "remove <metric>",
		Short: "Stop tracking a metric, stored values are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			engine, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer engine.Close()

			if !engine.Deregister(ctx, args[0]) {
				return fmt.Errorf("%s is not tracked", args[0])
			}
			fmt.Printf("removed %s\n", args[0])
			return nil
		},
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List tracked metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			engine, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer engine.Close()

			for _, name := range engine.List(ctx) {
				fmt.Println(name)
			}
			return nil
		},
	}

	totalCmd = &cobra.Command{
		Use:   "total <entity> <metric>",
		Short: "Print the cross-node total of a metric for an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			engine, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer engine.Close()

			fmt.Println(engine.SyncedTotal(ctx, args[0], args[1]))
			return nil
		},
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade every metric table to the current layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			engine, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer engine.Close()

			changed, err := engine.MigrateAll(ctx)
			if err != nil {
				return err
			}
			if changed {
				fmt.Println("metric tables migrated")
			} else {
				fmt.Println("metric tables are up to date")
			}
			return nil
		},
	}
)

func init() {
	addCmd.Flags().Bool("force", false, "register without validating the value")
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	engine, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	force, _ := cmd.Flags().GetBool("force")
	if force || config.StringValue("MSS_VALUE_SOURCE") == "" {
		name := strings.ToLower(args[0])
		if !engine.Register(ctx, name) {
			return fmt.Errorf("failed to register %s", name)
		}
		fmt.Printf("added %s without validation\n", name)
		return nil
	}

	v, err := engine.RegisterValidated(ctx, args[0])
	if err != nil {
		return err
	}
	if v.Skipped {
		fmt.Printf("added %s, no online entity to validate against\n", v.Name)
		return nil
	}
	fmt.Printf("added %s (%s = %s)\n", v.Name, v.Sample.Name, v.Value)
	return nil
}
