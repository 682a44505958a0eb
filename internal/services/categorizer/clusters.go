package categorizer

import "sort"

// Cluster is one entry of the built-in semantic vocabulary. A semantic rule
// names a cluster in its pattern and matches when at least two of the
// cluster's keywords occur in the candidate text.
type Cluster struct {
	Name        string
	Category    string
	Subcategory string
	Keywords    []string
}

// Keyword lists are lowercase. Single words are matched against whole
// tokens; entries containing a space or slash are matched as substrings.
var clusterTable = map[string]Cluster{
	"web-development": {
		Name:        "web-development",
		Category:    "programming",
		Subcategory: "web",
		Keywords: []string{
			"html", "css", "javascript", "frontend", "backend", "http",
			"browser", "dom", "rest api", "web server", "webpack", "react",
		},
	},
	"machine-learning": {
		Name:        "machine-learning",
		Category:    "data-science",
		Subcategory: "machine-learning",
		Keywords: []string{
			"machine learning", "neural network", "training data", "dataset",
			"classifier", "regression", "inference", "deep learning",
			"gradient", "tensor", "overfitting", "embedding",
		},
	},
	"databases": {
		Name:        "databases",
		Category:    "infrastructure",
		Subcategory: "databases",
		Keywords: []string{
			"database", "sql", "query", "index", "transaction", "schema",
			"nosql", "replication", "shard", "migration", "postgres", "rollback",
		},
	},
	"devops": {
		Name:        "devops",
		Category:    "infrastructure",
		Subcategory: "devops",
		Keywords: []string{
			"deployment", "docker", "kubernetes", "container", "pipeline",
			"ci/cd", "terraform", "monitoring", "provisioning", "ansible",
			"rollout", "helm",
		},
	},
	"security": {
		Name:        "security",
		Category:    "security",
		Subcategory: "",
		Keywords: []string{
			"vulnerability", "encryption", "authentication", "authorization",
			"exploit", "tls", "certificate", "password", "firewall",
			"injection", "cve", "sandbox",
		},
	},
	"programming-general": {
		Name:        "programming-general",
		Category:    "programming",
		Subcategory: "general",
		Keywords: []string{
			"function", "variable", "compiler", "syntax", "algorithm",
			"debugging", "refactoring", "interface", "runtime", "concurrency",
			"recursion", "type system",
		},
	},
}

// ClusterByName looks up a cluster by its lowercase name.
func ClusterByName(name string) (Cluster, bool) {
	cluster, ok := clusterTable[name]
	return cluster, ok
}

// ClusterNames returns the known cluster names sorted alphabetically, for
// surfaces that validate semantic rule patterns at creation time.
func ClusterNames() []string {
	names := make([]string, 0, len(clusterTable))
	for name := range clusterTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
