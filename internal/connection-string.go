package internal

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	DefaultPort = 6379
	DefaultHost = "localhost"
)

type Options struct {
	// 节点地址，host:port。至少一个，默认：localhost:6379。
	Hosts []string
	// 访问密码。连接串中的user-info整体作为密码。
	Password string
	// 数据库下标。默认：0。该选项对集群无效。
	DatabaseIndex int
	// 初次连接失败时是否返回错误。为false则记录日志后继续，由驱动在后续命令中重连。默认：true。
	AbortOnConnectFail bool
	// 是否允许管理操作（ClearKeys）。默认：false。
	AllowAdmin bool
	// 初次连接失败后的重试次数。默认：3。
	ConnectRetryCount int
	// 建立连接的超时时长（毫秒）。默认：5000。
	ConnectTimeoutMs int
	// 客户端名称，连接建立后通过CLIENT SETNAME设置。
	ClientName string
	// TCP保活间隔（秒）。为0或负数则关闭。默认：60。
	KeepAliveSeconds int
	// 是否在拨号前先解析域名。默认：false。
	ResolveDNS bool
	// 写超时时长（毫秒）。默认：5000。
	SyncTimeoutMs int
	// 读超时时长（毫秒）。默认：SyncTimeoutMs。
	ResponseTimeoutMs int
	// 哨兵模式下的主节点名称。非空时使用哨兵客户端。
	ServiceName string
	// 套接字写缓冲区大小（字节）。默认：4096。
	WriteBufferBytes int
	// 是否启用TLS。默认：false，rediss://时为true。
	TLS bool
	// TLS校验使用的主机名。为空则取连接地址的主机名。
	TLSHostOverride string
	// 主从切换通知频道。仅保存，驱动不使用。
	ConfigurationChannel string
	// 主节点选举使用的键。仅保存，驱动不使用。
	TieBreakerKey string
}

func defaultOptions() *Options {
	return &Options{
		AbortOnConnectFail: true,
		ConnectRetryCount:  3,
		ConnectTimeoutMs:   5000,
		KeepAliveSeconds:   60,
		SyncTimeoutMs:      5000,
		WriteBufferBytes:   4096,
	}
}

// ParseConnectionString 解析连接串。不会返回nil，也不会报错：无法识别的部分一律取默认值。
// 格式：[scheme://][password@]host1[,host2,...][?key1=val1&key2=val2...]
func ParseConnectionString(descriptor string) *Options {
	options := defaultOptions()
	rest := strings.TrimSpace(descriptor)

	// 去掉scheme。出现在@、?、逗号之后的://属于密码或参数值
	tlsByScheme := false
	if i := strings.Index(rest, "://"); i >= 0 && !strings.ContainsAny(rest[:i], "@?,") {
		tlsByScheme = strings.EqualFold(rest[:i], "rediss")
		rest = rest[i+3:]
	}

	// 查询参数从最后一个@之后开始找，密码中可以出现?
	var query string
	hostStart := strings.LastIndex(rest, "@") + 1
	if i := strings.Index(rest[hostStart:], "?"); i >= 0 {
		query = rest[hostStart+i+1:]
		rest = rest[:hostStart+i]
	}

	// user-info整体作为密码，主机列表中不会出现@
	hasUserInfo := false
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		options.Password = rest[:i]
		hasUserInfo = true
		rest = rest[i+1:]
	}

	for _, host := range strings.Split(rest, ",") {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		options.Hosts = append(options.Hosts, withDefaultPort(host))
	}
	if len(options.Hosts) == 0 {
		options.Hosts = []string{net.JoinHostPort(DefaultHost, strconv.Itoa(DefaultPort))}
	}

	values := parseQuery(query)
	options.AbortOnConnectFail = boolValue(values, "abortconnect", options.AbortOnConnectFail)
	options.AllowAdmin = boolValue(values, "allowadmin", options.AllowAdmin)
	options.ConnectRetryCount = intValue(values, "connectretry", options.ConnectRetryCount)
	options.ConnectTimeoutMs = intValue(values, "connecttimeout", options.ConnectTimeoutMs)
	options.DatabaseIndex = intValue(values, "defaultdatabase", options.DatabaseIndex)
	if options.DatabaseIndex < 0 {
		options.DatabaseIndex = 0
	}
	options.ClientName = stringValue(values, "name", options.ClientName)
	options.KeepAliveSeconds = intValue(values, "keepalive", options.KeepAliveSeconds)
	options.ResolveDNS = boolValue(values, "resolvedns", options.ResolveDNS)
	options.SyncTimeoutMs = intValue(values, "synctimeout", options.SyncTimeoutMs)
	options.ResponseTimeoutMs = intValue(values, "responsetimeout", options.SyncTimeoutMs)
	options.ServiceName = stringValue(values, "servicename", options.ServiceName)
	options.WriteBufferBytes = intValue(values, "writebuffer", options.WriteBufferBytes)
	options.TLS = boolValue(values, "ssl", tlsByScheme)
	options.TLSHostOverride = stringValue(values, "sslhost", options.TLSHostOverride)
	options.ConfigurationChannel = stringValue(values, "configchannel", options.ConfigurationChannel)
	options.TieBreakerKey = stringValue(values, "tiebreaker", options.TieBreakerKey)
	if !hasUserInfo {
		options.Password = stringValue(values, "password", options.Password)
	}
	return options
}

// BuildConnectionString 按单个节点拼接连接串，等价于 password@host:port?defaultdatabase=db
func BuildConnectionString(host string, port int, password string, database int) string {
	var sb strings.Builder
	if password != "" {
		sb.WriteString(password)
		sb.WriteString("@")
	}
	sb.WriteString(net.JoinHostPort(host, strconv.Itoa(port)))
	sb.WriteString("?defaultdatabase=")
	sb.WriteString(strconv.Itoa(database))
	return sb.String()
}

func withDefaultPort(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(DefaultPort))
}

// parseQuery 键名不区分大小写，重复的键以第一次出现的为准
func parseQuery(query string) map[string]string {
	values := make(map[string]string)
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		key, value := pair, ""
		if i := strings.Index(pair, "="); i >= 0 {
			key, value = pair[:i], pair[i+1:]
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if _, ok := values[key]; ok || key == "" {
			continue
		}
		if unescaped, err := url.QueryUnescape(value); err == nil {
			value = unescaped
		}
		values[key] = strings.TrimSpace(value)
	}
	return values
}

func intValue(values map[string]string, key string, def int) int {
	if v, ok := values[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func boolValue(values map[string]string, key string, def bool) bool {
	if v, ok := values[key]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func stringValue(values map[string]string, key string, def string) string {
	if v, ok := values[key]; ok && v != "" {
		return v
	}
	return def
}

// String 输出配置，密码以*代替
func (o *Options) String() string {
	var sb strings.Builder
	addField := func(name string, value interface{}) {
		sb.WriteString(fmt.Sprintf("  %-22s: %v\n", name, value))
	}
	password := ""
	if o.Password != "" {
		password = "******"
	}
	addField("Hosts", strings.Join(o.Hosts, ","))
	addField("Password", password)
	addField("Database", o.DatabaseIndex)
	addField("AbortOnConnectFail", o.AbortOnConnectFail)
	addField("AllowAdmin", o.AllowAdmin)
	addField("ConnectRetry", o.ConnectRetryCount)
	addField("ConnectTimeout", fmt.Sprintf("%d ms", o.ConnectTimeoutMs))
	addField("ClientName", o.ClientName)
	addField("KeepAlive", fmt.Sprintf("%d s", o.KeepAliveSeconds))
	addField("ResolveDNS", o.ResolveDNS)
	addField("SyncTimeout", fmt.Sprintf("%d ms", o.SyncTimeoutMs))
	addField("ResponseTimeout", fmt.Sprintf("%d ms", o.ResponseTimeoutMs))
	addField("ServiceName", o.ServiceName)
	addField("WriteBuffer", fmt.Sprintf("%d B", o.WriteBufferBytes))
	addField("TLS", o.TLS)
	addField("TLSHost", o.TLSHostOverride)
	addField("ConfigChannel", o.ConfigurationChannel)
	addField("TieBreaker", o.TieBreakerKey)
	return sb.String()
}

// universal 转换为go-redis的配置
func (o *Options) universal() *redis.UniversalOptions {
	options := &redis.UniversalOptions{
		Addrs:      o.Hosts,
		Password:   o.Password,
		DB:         o.DatabaseIndex,
		MasterName: o.ServiceName,
		// 重试由RetryExecutor负责，驱动层不能再重试，否则非幂等命令可能被执行多次。
		MaxRetries:   -1,
		DialTimeout:  millis(o.ConnectTimeoutMs),
		ReadTimeout:  millis(o.ResponseTimeoutMs),
		WriteTimeout: millis(o.SyncTimeoutMs),
		Dialer:       o.dial,
	}
	if o.ClientName != "" {
		name := o.ClientName
		options.OnConnect = func(ctx context.Context, cn *redis.Conn) error {
			return cn.ClientSetName(ctx, name).Err()
		}
	}
	return options
}

// dial 自定义拨号：TCP保活、域名预解析、写缓冲区和TLS
func (o *Options) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: millis(o.ConnectTimeoutMs)}
	if o.KeepAliveSeconds > 0 {
		dialer.KeepAlive = time.Duration(o.KeepAliveSeconds) * time.Second
	} else {
		dialer.KeepAlive = -1
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	target := addr
	if o.ResolveDNS {
		ips, err := net.DefaultResolver.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		}
		if len(ips) > 0 {
			target = net.JoinHostPort(ips[0], port)
		}
	}

	conn, err := dialer.DialContext(ctx, network, target)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok && o.WriteBufferBytes > 0 {
		_ = tcp.SetWriteBuffer(o.WriteBufferBytes)
	}
	if !o.TLS {
		return conn, nil
	}

	serverName := host
	if o.TLSHostOverride != "" {
		serverName = o.TLSHostOverride
	}
	tlsConn := tls.Client(conn, &tls.Config{ServerName: serverName, MinVersion: tls.VersionTLS12})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

func millis(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
