package upload

// Banner messages shown to the user.
const (
	MsgNoData          = "No data to upload."
	MsgEmptyCSV        = "CSV file is empty."
	MsgFieldMismatch   = "CSV file have no enough data fields."
	MsgInvalidValues   = "CSV file has invalid field values."
	MsgBackupFailed    = "Error creating backup for KV Store. Please try again later."
	MsgDeleteFailed    = "Error deleting all entries. Please try again."
	MsgInsertFailed    = "Error uploading csv. Please try again."
	MsgRestoreFailed   = "Error restoring KV Store. If data is lost, please contact admin."
	MsgFetchFailed     = "Error fetching all entries. Please try again."
	MsgUpdateFailed    = "Error updating entry."
	MsgUploadBusy      = "Another change to this collection is in progress. Please try again later."
	MsgNoLookup        = "No lookup is configured for this collection."
	MsgSnapshotRead    = "Error reading snapshot."
	MsgBackupCreated   = "Backup created."
	MsgBackupRestored  = "KV Store restored from backup."
	MsgUpdating        = "Updating..."
	MsgRowUpdated      = "Row successfully updated"
	MsgRowUpdateFailed = "Error updating row. Please try again."
	MsgNoDownload      = "No data to download."
	MsgDownloadFailed  = "Error downloading csv. Please try again."
)

const (
	replaceSuccessFormat     = "CSV file successfully uploaded. Removed %d items and added %d items."
	incrementalSuccessFormat = "CSV file successfully uploaded. Update %d items and added %d items."
	snapshotRestoredFormat   = "Snapshot restored. Removed %d items and added %d items."
)
