package main

import (
	"context"
	"net/http"
	"os"
	"strings"

	"tedis/internal"

	"github.com/Chngzhen/log4g"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "2.0.0"

var store *internal.Store

var rootCmd = &cobra.Command{
	Use:   "tedis",
	Short: "带命名空间的类型化Redis命令行工具",
	Example: `  tedis -c 'Password@127.0.0.1:6379?defaultdatabase=1' -n orders -t int64 set total 42
  tedis -c '127.0.0.1:7001,127.0.0.1:7002?allowAdmin=true' -n orders clear 'user:info:136*'`,
	SilenceUsage:      true,
	PersistentPreRunE: setupStore,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			store.Close()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "输出版本",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		println("Tedis V" + version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringP("connection", "c", "", "连接串：[redis://][password@]host1[,host2,...][?key=value&...]。默认：localhost:6379。")
	flags.StringP("namespace", "n", "", "键的命名空间。为空则不加前缀。")
	flags.StringP("type", "t", "string", "值类型。取值：string | int32 | int64 | float64 | bool。")
	flags.Int("retries", 3, "幂等命令失败时的重试次数。为0则不重试。")
	flags.Int("pool-size", 1, "连接数量。")
	flags.Bool("fire-and-forget", false, "写命令失败时只记录日志。")
	flags.String("metrics-listen", "", "Prometheus指标的监听地址，如:9121。为空则不开启。")

	rootCmd.AddCommand(versionCmd)
	addCommands(rootCmd)
}

// initConfig 环境变量以TEDIS_为前缀，如TEDIS_CONNECTION、TEDIS_POOL_SIZE
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("tedis")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func setupStore(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if address := viper.GetString("metrics-listen"); address != "" {
		go func() {
			if err := http.ListenAndServe(address, promhttp.Handler()); err != nil {
				log4g.Error("指标服务启动失败：%+v", err)
			}
		}()
	}

	flags := internal.FlagNone
	if viper.GetBool("fire-and-forget") {
		flags |= internal.FlagFireAndForget
	}

	var err error
	store, err = internal.NewStore(cmd.Context(), &internal.Property{
		Namespace:        viper.GetString("namespace"),
		ConnectionString: viper.GetString("connection"),
		Flags:            flags,
		RetryCount:       viper.GetInt("retries"),
		PoolSize:         viper.GetInt("pool-size"),
	})
	if err != nil {
		log4g.Error("客户端创建失败：%+v", err)
		return err
	}
	log4g.Info("客户端创建成功！\n%s", store.Options())
	return nil
}

// ./tedis -c 'Password@127.0.0.1:7001' -n orders -t int32 incr total 1
func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
