/*
Package health provides reachability probes used to classify and evict
scrape sources. An HTTPChecker reports Healthy/Unhealthy plus latency;
FetchBody additionally hands back a response body for callers that need
to inspect it, such as classifying a peer as Proxy or Prometheus.
*/
package health
