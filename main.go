// @title LSRW 点评控制台 API
// @version 1.0
// @description 听说读写课程发布、学生提交点评与成绩核验。

// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main

import (
	"lsrw_console/internal/app"
	"lsrw_console/internal/config"
	"os"

	"github.com/spf13/cobra"
)

var configDir string

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(configDir)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lsrw_console",
		Short:         "LSRW lesson review console API",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVarP(&configDir, "config", "c", "configs", "配置文件目录")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := app.Migrate(cfg); err != nil {
				return err
			}
			cmd.Println("database migration completed")
			return nil
		},
	})
	return root
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	application, err := app.NewApp(cfg)
	if err != nil {
		return err
	}
	return application.Run()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
