package webserver

import "embed"

//go:embed assets/index.html assets/is_admire_proxy.html
var assets embed.FS

func mustAsset(name string) []byte {
	data, err := assets.ReadFile("assets/" + name)
	if err != nil {
		panic(err)
	}
	return data
}
