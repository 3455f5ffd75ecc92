package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// listTotal 记录列表请求及其结果
	listTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filehub_registry_list_total",
			Help: "Total number of registry list calls",
		},
		[]string{"outcome"},
	)

	// fetchFailuresTotal 记录列表时被省略的记录数
	fetchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filehub_registry_fetch_failures_total",
		Help: "Records omitted from a listing because their fetch failed",
	})

	// writesTotal 记录创建与删除
	writesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filehub_registry_writes_total",
			Help: "Total number of registry mutations",
		},
		[]string{"op", "outcome"},
	)
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
