package internal

import "strings"

// NamespacedKey 给键加上命名空间前缀：ns=<namespace>:k=<key>。命名空间为空时原样返回。
func NamespacedKey(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return namespacePrefix(namespace) + key
}

// StripNamespace 去掉NamespacedKey添加的前缀
func StripNamespace(namespace, key string) string {
	if namespace == "" {
		return key
	}
	prefix := namespacePrefix(namespace)
	if !strings.HasPrefix(key, prefix) {
		return key
	}
	return key[len(prefix):]
}

func namespacedKeys(namespace string, keys []string) []string {
	result := make([]string, len(keys))
	for i, key := range keys {
		result[i] = NamespacedKey(namespace, key)
	}
	return result
}

func namespacePrefix(namespace string) string {
	return "ns=" + namespace + ":k="
}

// namespacePattern 用作SCAN MATCH的前缀，命名空间中的通配符按字面匹配
func namespacePattern(namespace string) string {
	return globEscaper.Replace(namespacePrefix(namespace))
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
