/*
Package multisync keeps per-entity numeric stats consistent across many
independent server nodes that share one relational database.

Every node owns one column in each metric table. On a fixed schedule the node
reads its local value of every tracked metric for every locally known entity
and upserts it into its own column. Any node can then read the cross-node
total of a metric for an entity, which is the sum of all node columns.

	mss_synced_placeholders          registry of tracked metric names
	mss_<metric>                     one row per entity, one column per node
	  player_uuid | player_name | lobby | survival | creative

Node columns are created on a node's first write. Creation is serialized in
process and tolerant of other processes racing to add the same column.

Example:

	engine, err := multisync.New(ctx, multisync.Options{
		Source:    mySource,    // local value of (entity, metric)
		Directory: myDirectory, // locally known entities
	})
	if err != nil {
		log.Fatal(err)
	}
	defer engine.Close()

	engine.Start(ctx)

	// cross-node total, "0" when nothing is stored
	total := engine.SyncedTotal(ctx, "069a79f4-44e9-4726-a5be-fca90e38aaf5", "%player_kills%")

	http.Handle("/", engine.Handler())

	// registry changes, reload and manual sync; keep this one private
	go http.ListenAndServe("127.0.0.1:8098", engine.AdminHandler())

Configuration is read from the environment:

	MSS_SERVER_NAME="survival-1"     // this node's column, [A-Za-z0-9_-]+
	MSS_SYNC_INTERVAL="300s"
	MSS_INITIAL_DELAY="60s"
	MSS_SCHEDULER="global"           // or "affinity"
	MSS_DB_DRIVER="mysql"            // mysql, postgres, sqlite3 or memory
	MSS_DB_HOST="localhost"
	MSS_DB_PORT="3306"
	MSS_DB_NAME="multisync"
	MSS_DB_USER="root"
	MSS_DB_PASSWORD=""

SyncedTotal never fails: any missing data reads as "0". Use Total to tell a
stored zero from no data at all.
*/
package multisync
