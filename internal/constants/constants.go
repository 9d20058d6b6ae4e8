package constants

//CollectionDevices Name of the collection.
const CollectionDevices = "pushDevices"

//DbPushCountersPrefix Prefix of push counters data in Realtime DB.
const DbPushCountersPrefix = "pushCounters/"

//RedisKeyExpiredPrefix Prefix of the expired registrations log in Redis, followed by environment.
const RedisKeyExpiredPrefix = "push:expired:"

//MutexNameReconcilePrefix Prefix of reconciliation mutex names, followed by channel.
const MutexNameReconcilePrefix = "push-reconcile-"

//SecretAPIKey Secret with the API key of the HTTP functions.
const SecretAPIKey = "push-apikey"
