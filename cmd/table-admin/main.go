// Command table-admin creates and inspects the site table.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"wedding-site-backend/internal/config"
	"wedding-site-backend/internal/database"
	"wedding-site-backend/internal/logger"
	"wedding-site-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type app struct {
	configFile string
	envPath    string
	cfg        *config.ToolConfig
	client     *database.DynamoDBClient
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{}
	if err := a.rootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "table-admin",
		Short:        "Create and inspect the wedding site table",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.connect(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&a.envPath, "env", "", "directory holding .env files")

	root.AddCommand(a.ensureCommand(), a.tablesCommand(), a.describeCommand(), a.scanCommand())
	return root
}

func (a *app) connect(ctx context.Context) error {
	cfg, err := config.LoadToolConfig(a.configFile, a.envPath)
	if err != nil {
		return err
	}
	if err := logger.Initialize(logger.Config{Debug: cfg.Debug, SentryDSN: cfg.SentryDSN}); err != nil {
		return err
	}

	client, err := database.NewDynamoDBClient(ctx, cfg.DynamoDB)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.client = client
	return nil
}

func (a *app) ensureCommand() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Create the table and its indexes when missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			table := a.cfg.DynamoDB.TableName
			created, err := a.client.EnsureTable(cmd.Context(), table, wait)
			if err != nil {
				return err
			}
			if created {
				logger.Info("Created table", zap.String("table", table))
			} else {
				logger.Info("Table already exists", zap.String("table", table))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Minute, "how long to wait for the table to become active")
	return cmd
}

func (a *app) tablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List table names",
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := a.client.ListTables(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, names)
		},
	}
}

func (a *app) describeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "describe [table]",
		Short: "Show key schema, indexes and item count",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table := a.cfg.DynamoDB.TableName
			if len(args) == 1 {
				table = args[0]
			}
			desc, err := a.client.DescribeTable(cmd.Context(), table)
			if err != nil {
				return err
			}
			return printJSON(cmd, summarizeTable(desc))
		},
	}
}

func (a *app) scanCommand() *cobra.Command {
	var (
		limit   int32
		afterPK string
		afterSK string
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Print one page of raw records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var start map[string]types.AttributeValue
			if afterPK != "" {
				start = map[string]types.AttributeValue{
					model.AttrPK: &types.AttributeValueMemberS{Value: afterPK},
					model.AttrSK: &types.AttributeValueMemberS{Value: afterSK},
				}
			}

			items, next, err := a.client.ScanPage(cmd.Context(), a.cfg.DynamoDB.TableName, limit, start)
			if err != nil {
				return err
			}

			out := scanOutput{Items: items}
			if pk, ok := next[model.AttrPK].(*types.AttributeValueMemberS); ok {
				out.NextPK = pk.Value
			}
			if sk, ok := next[model.AttrSK].(*types.AttributeValueMemberS); ok {
				out.NextSK = sk.Value
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().Int32Var(&limit, "limit", 25, "records per page (max 200)")
	cmd.Flags().StringVar(&afterPK, "after-pk", "", "resume after this partition key")
	cmd.Flags().StringVar(&afterSK, "after-sk", "", "resume after this sort key")
	return cmd
}

type scanOutput struct {
	Items  []model.Item `json:"items"`
	NextPK string       `json:"nextPk,omitempty"`
	NextSK string       `json:"nextSk,omitempty"`
}

type tableSummary struct {
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	ItemCount int64    `json:"itemCount"`
	KeySchema []string `json:"keySchema"`
	Indexes   []string `json:"indexes"`
}

func summarizeTable(desc *types.TableDescription) tableSummary {
	s := tableSummary{Status: string(desc.TableStatus)}
	if desc.TableName != nil {
		s.Name = *desc.TableName
	}
	if desc.ItemCount != nil {
		s.ItemCount = *desc.ItemCount
	}
	for _, k := range desc.KeySchema {
		s.KeySchema = append(s.KeySchema, fmt.Sprintf("%s (%s)", deref(k.AttributeName), k.KeyType))
	}
	for _, idx := range desc.GlobalSecondaryIndexes {
		s.Indexes = append(s.Indexes, fmt.Sprintf("%s [%s]", deref(idx.IndexName), idx.IndexStatus))
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
