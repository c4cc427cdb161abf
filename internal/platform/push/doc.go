// Package push implements notify.Notifier. GatewayNotifier delivers task
// results through an HTTP push gateway that fans out to APNs or FCM based
// on the device's push channel; LogNotifier only logs them.
package push
