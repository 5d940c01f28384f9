package domain

type MetricsCollector interface {
	RecordDatasetFetch(FetchResult)
	RecordFetchRetry(url string)
	RecordDocumentWrite(operation string, err error)
	RecordLinksImported(source string, imported, failed int)
	RecordDecodeWarning(protocol string)
	RecordTraffic(direction, tag string, uplink, downlink int64)
}
