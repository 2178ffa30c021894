package cache

import "fmt"

// Namespace is a logical grouping of cache keys that are invalidated
// together.
type Namespace string

const (
	NamespaceProducts   Namespace = "products"
	NamespaceFilters    Namespace = "filters"
	NamespaceCategories Namespace = "categories"
	NamespaceColors     Namespace = "colors"
	NamespaceHero       Namespace = "hero"
	NamespaceBanners    Namespace = "banners"
	NamespaceSales      Namespace = "sales"
	NamespaceKPIs       Namespace = "kpis"
	NamespaceOrders     Namespace = "orders"
	NamespaceCart       Namespace = "cart"
	NamespaceFeatured   Namespace = "featured"
)

// Namespaces lists every namespace the manager knows about, in the order
// Stats reports them.
func Namespaces() []Namespace {
	return []Namespace{
		NamespaceProducts,
		NamespaceFilters,
		NamespaceCategories,
		NamespaceColors,
		NamespaceHero,
		NamespaceBanners,
		NamespaceSales,
		NamespaceKPIs,
		NamespaceOrders,
		NamespaceCart,
		NamespaceFeatured,
	}
}

// Key builds the store key for an entry within the namespace.
func (n Namespace) Key(key string) string {
	return fmt.Sprintf("cache:%s:%s", n, key)
}

// Pattern is the glob matching every key in the namespace.
func (n Namespace) Pattern() string {
	return fmt.Sprintf("cache:%s:*", n)
}
