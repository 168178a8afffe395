package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"tedis/internal"

	"github.com/Chngzhen/log4g"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// typedOps 按值类型实例化的命令。incr为nil表示该类型不支持自增、自减。
type typedOps struct {
	get    func(ctx context.Context, key string) (string, error)
	set    func(ctx context.Context, key, raw string, ttl time.Duration) error
	getset func(ctx context.Context, key, raw string) (string, error)
	incr   func(ctx context.Context, key, raw string, negative bool) (string, error)
}

var operations = map[string]func() typedOps{
	"string":  scalarOps[string],
	"int32":   numberOps[int32],
	"int64":   numberOps[int64],
	"float64": numberOps[float64],
	"bool":    scalarOps[bool],
}

func scalarOps[T internal.Scalar]() typedOps {
	return typedOps{
		get: func(ctx context.Context, key string) (string, error) {
			value, err := internal.GetNullable[T](ctx, store, key)
			if err != nil || value == nil {
				return "(nil)", err
			}
			return fmt.Sprint(*value), nil
		},
		set: func(ctx context.Context, key, raw string, ttl time.Duration) error {
			value, err := parseArg[T](raw)
			if err != nil {
				return err
			}
			return internal.Set(ctx, store, key, value, ttl)
		},
		getset: func(ctx context.Context, key, raw string) (string, error) {
			value, err := parseArg[T](raw)
			if err != nil {
				return "", err
			}
			previous, err := internal.ExchangeNullable(ctx, store, key, value)
			if err != nil || previous == nil {
				return "(nil)", err
			}
			return fmt.Sprint(*previous), nil
		},
	}
}

func numberOps[T internal.Number]() typedOps {
	ops := scalarOps[T]()
	ops.incr = func(ctx context.Context, key, raw string, negative bool) (string, error) {
		delta, err := parseArg[T](raw)
		if err != nil {
			return "", err
		}
		var value T
		if negative {
			value, err = internal.Decrement(ctx, store, key, delta)
		} else {
			value, err = internal.Increment(ctx, store, key, delta)
		}
		return fmt.Sprint(value), err
	}
	return ops
}

// parseArg 命令行中的布尔值按true/false解析，其他类型与存储形式一致
func parseArg[T internal.Scalar](raw string) (T, error) {
	var zero T
	if _, ok := any(zero).(bool); ok {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return zero, fmt.Errorf("布尔值不合法：%s", raw)
		}
		return any(b).(T), nil
	}
	value, _, err := internal.Decode[T](internal.Native(raw))
	return value, err
}

func currentOps() (typedOps, error) {
	name := viper.GetString("type")
	factory, ok := operations[name]
	if !ok {
		return typedOps{}, fmt.Errorf("未定义的值类型：%s", name)
	}
	return factory(), nil
}

func addCommands(root *cobra.Command) {
	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "读取键值",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := currentOps()
			if err != nil {
				return err
			}
			value, err := ops.get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "写入键值",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := currentOps()
			if err != nil {
				return err
			}
			ttl, _ := cmd.Flags().GetDuration("ttl")
			return ops.set(cmd.Context(), args[0], args[1], ttl)
		},
	}
	setCmd.Flags().Duration("ttl", 0, "过期时长，如30s、5m。为0则不过期。")

	delCmd := &cobra.Command{
		Use:   "del <key> [key...]",
		Short: "删除键",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deleted, err := store.Delete(cmd.Context(), args...)
			if err != nil {
				return err
			}
			fmt.Println(deleted)
			return nil
		},
	}

	appendCmd := &cobra.Command{
		Use:   "append <key> <text>",
		Short: "追加文本，键不存在时等同于写入",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			length, err := store.SetOrAppend(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println(length)
			return nil
		},
	}

	incrCmd := &cobra.Command{
		Use:   "incr <key> [delta]",
		Short: "自增，默认步长1",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIncr(cmd, args, false)
		},
	}

	decrCmd := &cobra.Command{
		Use:   "decr <key> [delta]",
		Short: "自减，默认步长1",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIncr(cmd, args, true)
		},
	}

	getsetCmd := &cobra.Command{
		Use:   "getset <key> <value>",
		Short: "写入新值并输出旧值",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := currentOps()
			if err != nil {
				return err
			}
			previous, err := ops.getset(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println(previous)
			return nil
		},
	}

	ttlCmd := &cobra.Command{
		Use:   "ttl <key>",
		Short: "读取剩余过期时长",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, ok, err := store.GetTimeToLive(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("(none)")
				return nil
			}
			fmt.Println(ttl)
			return nil
		},
	}

	expireCmd := &cobra.Command{
		Use:   "expire <key> [duration]",
		Short: "更新过期时长。未指定时长时，若键已设置过期则清除过期",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var expiry *time.Duration
			if clearTTL, _ := cmd.Flags().GetBool("clear"); clearTTL {
				zero := time.Duration(0)
				expiry = &zero
			} else if len(args) == 2 {
				d, err := time.ParseDuration(args[1])
				if err != nil {
					return err
				}
				expiry = &d
			}
			return store.SetTimeToLive(cmd.Context(), args[0], expiry)
		},
	}
	expireCmd.Flags().Bool("clear", false, "清除过期")

	keysCmd := &cobra.Command{
		Use:   "keys [pattern]",
		Short: "列出匹配的键。会遍历全部键空间，不建议在生产环境使用",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := store.ListKeys(cmd.Context(), firstArg(args))
			if err != nil {
				return err
			}
			for _, key := range keys {
				fmt.Println(key)
			}
			return nil
		},
	}

	countCmd := &cobra.Command{
		Use:   "count [pattern]",
		Short: "统计各节点上匹配的键数量",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			printReport(store.CountKeys(cmd.Context(), firstArg(args)), false)
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear [pattern]",
		Short: "删除匹配的键，需要连接串中allowAdmin=true",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := store.ClearKeys(cmd.Context(), firstArg(args))
			printReport(report, true)
			return err
		},
	}

	root.AddCommand(getCmd, setCmd, delCmd, appendCmd, incrCmd, decrCmd, getsetCmd, ttlCmd, expireCmd, keysCmd, countCmd, clearCmd)
}

func runIncr(cmd *cobra.Command, args []string, negative bool) error {
	ops, err := currentOps()
	if err != nil {
		return err
	}
	if ops.incr == nil {
		return fmt.Errorf("类型%s不支持自增、自减", viper.GetString("type"))
	}
	delta := "1"
	if len(args) == 2 {
		delta = args[1]
	}
	value, err := ops.incr(cmd.Context(), args[0], delta, negative)
	if err != nil {
		return err
	}
	fmt.Println(value)
	return nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// printReport 按节点地址顺序输出匹配数量，清理时附带删除数量
func printReport(report *internal.KeyReport, cleared bool) {
	if report == nil {
		return
	}
	for _, address := range report.Nodes() {
		fmt.Printf("%s\t%d\n", address, report.Matched[address])
	}
	if cleared {
		log4g.Info("%d个节点共匹配%d个键，删除%d个", len(report.Matched), report.Total(), report.Deleted)
		return
	}
	log4g.Info("%d个节点共匹配%d个键", len(report.Matched), report.Total())
}
