package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
func InitializeMetrics() {
	for _, tier := range []string{"preview", "still", "strip"} {
		FrameDecodeDuration.WithLabelValues(tier)
		for _, status := range []string{"success", "error"} {
			FrameDecodesTotal.WithLabelValues(tier, status)
		}
	}

	for _, status := range []string{"success", "cached", "error", "cancelled", "invalid"} {
		TranscoderJobsTotal.WithLabelValues(status)
	}

	for _, reason := range []string{"retention", "invalidated", "cleared"} {
		ProxyFilesRemoved.WithLabelValues(reason)
	}

	for _, status := range []string{"completed", "cancelled", "throttled"} {
		ThumbnailPreloadsTotal.WithLabelValues(status)
	}

	for _, source := range []string{"probe", "catalog", "error"} {
		MetadataExtractionsTotal.WithLabelValues(source)
	}

	for _, format := range []string{"jpeg", "png", "heif"} {
		ExportDuration.WithLabelValues(format)
		ExportsTotal.WithLabelValues(format, "success")
		ExportsTotal.WithLabelValues(format, "error")
	}

	for _, tier := range []string{"proxied", "direct"} {
		AssetsLoadedTotal.WithLabelValues(tier)
	}

	for _, op := range []string{"put_proxy", "get_proxy", "delete_proxy", "list_proxies", "touch_proxy", "put_metadata", "get_metadata"} {
		CatalogQueryTotal.WithLabelValues(op, "success")
		CatalogQueryTotal.WithLabelValues(op, "error")
		CatalogQueryDuration.WithLabelValues(op)
	}

	FilesystemRetryAttempts.WithLabelValues("stat")
	FilesystemRetrySuccess.WithLabelValues("stat")
	FilesystemRetryFailures.WithLabelValues("stat")
	FilesystemStaleErrors.WithLabelValues("stat")
	FilesystemRetryDuration.WithLabelValues("stat")
}
